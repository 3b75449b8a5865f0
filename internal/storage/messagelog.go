// Package storage persists delivery jobs and context windows in
// PostgreSQL. Sensitive columns (contacts, rendered template content)
// are encrypted before any write and decrypted on every read path, so
// callers only ever hold plaintext in memory.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/whatsapp-billing/internal/crypto"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
)

// MessageLogStore is the durable queue/log of delivery jobs.
type MessageLogStore struct {
	db     *sqlx.DB
	cipher *crypto.Cipher
	logger *slog.Logger
}

// NewMessageLogStore creates a MessageLogStore.
func NewMessageLogStore(db *sqlx.DB, cipher *crypto.Cipher, logger *slog.Logger) *MessageLogStore {
	return &MessageLogStore{
		db:     db,
		cipher: cipher,
		logger: logger,
	}
}

type messageLogRow struct {
	ID                 string         `db:"id"`
	SourceID           string         `db:"source_id"`
	Kind               string         `db:"kind"`
	Recipient          string         `db:"recipient"`
	Employee           sql.NullString `db:"employee"`
	Month              int            `db:"month"`
	Year               int            `db:"year"`
	DocSeries          string         `db:"doc_series"`
	DocSeparator       string         `db:"doc_separator"`
	DocNumber          int            `db:"doc_number"`
	DocTotal           float64        `db:"doc_total"`
	DocIssueDate       string         `db:"doc_issue_date"`
	PaymentMethod      string         `db:"payment_method"`
	FileURL            string         `db:"file_url"`
	Status             string         `db:"status"`
	FailureReason      string         `db:"failure_reason"`
	TemplateContentSid string         `db:"template_content_sid"`
	TemplateContent    string         `db:"template_content"`
	ProviderMessageID  string         `db:"provider_message_id"`
	SentAt             sql.NullTime   `db:"sent_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

const messageLogColumns = `
	id, source_id, kind, recipient, employee, month, year,
	doc_series, doc_separator, doc_number, doc_total, doc_issue_date, payment_method,
	file_url, status, failure_reason,
	template_content_sid, template_content, provider_message_id,
	sent_at, created_at, updated_at
`

// Save inserts a new delivery job. The job gets an ID and timestamps if
// it does not carry them yet; sensitive fields are encrypted on the way
// out and the in-memory job stays plaintext.
func (s *MessageLogStore) Save(ctx context.Context, job *domain.DeliveryJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = domain.StatusPending
	}

	row, err := s.toRow(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO message_logs (` + messageLogColumns + `)
		VALUES (
			:id, :source_id, :kind, :recipient, :employee, :month, :year,
			:doc_series, :doc_separator, :doc_number, :doc_total, :doc_issue_date, :payment_method,
			:file_url, :status, :failure_reason,
			:template_content_sid, :template_content, :provider_message_id,
			:sent_at, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save delivery job: %w", err)
	}

	s.logger.Debug("Delivery job saved",
		slog.String("job_id", job.ID),
		slog.String("source_id", job.SourceID),
		slog.String("kind", job.Kind),
	)

	return nil
}

// FindPending returns all pending jobs of a period in insertion order.
// The worker relies on that order being stable across a run.
func (s *MessageLogStore) FindPending(ctx context.Context, period domain.Period) ([]domain.DeliveryJob, error) {
	query := `
		SELECT ` + messageLogColumns + `
		FROM message_logs
		WHERE year = $1 AND month = $2 AND status = $3
		ORDER BY created_at ASC, id ASC
	`

	var rows []messageLogRow
	if err := s.db.SelectContext(ctx, &rows, query, period.Year, period.Month, domain.StatusPending); err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	jobs := make([]domain.DeliveryJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, *s.fromRow(&row))
	}
	return jobs, nil
}

// GetByID fetches a single job, decrypted.
func (s *MessageLogStore) GetByID(ctx context.Context, id string) (*domain.DeliveryJob, error) {
	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE id = $1`

	var row messageLogRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get delivery job: %w", err)
	}

	return s.fromRow(&row), nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Period   *domain.Period
	Status   string
	Kind     string
	PageSize int
	Offset   int
}

// List returns jobs for browsing, newest first, decrypted.
func (s *MessageLogStore) List(ctx context.Context, filter ListFilter) ([]domain.DeliveryJob, error) {
	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Period != nil {
		query += fmt.Sprintf(" AND year = $%d AND month = $%d", argIdx, argIdx+1)
		args = append(args, filter.Period.Year, filter.Period.Month)
		argIdx += 2
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, pageSize, filter.Offset)

	var rows []messageLogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list delivery jobs: %w", err)
	}

	jobs := make([]domain.DeliveryJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, *s.fromRow(&row))
	}
	return jobs, nil
}

// MarkResult records the outcome of a delivery attempt: status, reason,
// the template audit fields, the provider message id, and the contacts
// with the message recorded on them. sent_at is stamped on the first
// attempt only and never re-dated afterwards.
func (s *MessageLogStore) MarkResult(ctx context.Context, job *domain.DeliveryJob, status, reason string) error {
	encContent, err := s.cipher.Encrypt(job.TemplateContent)
	if err != nil {
		return fmt.Errorf("failed to encrypt template content: %w", err)
	}
	if job.TemplateContent == "" {
		encContent = ""
	}

	recipient, err := s.cipher.Encrypt(job.Recipient)
	if err != nil {
		return fmt.Errorf("failed to encrypt recipient: %w", err)
	}

	var employee sql.NullString
	if job.Employee != nil {
		enc, err := s.cipher.Encrypt(*job.Employee)
		if err != nil {
			return fmt.Errorf("failed to encrypt employee: %w", err)
		}
		employee = sql.NullString{String: enc, Valid: true}
	}

	query := `
		UPDATE message_logs
		SET status = $1,
		    failure_reason = $2,
		    template_content_sid = $3,
		    template_content = $4,
		    provider_message_id = $5,
		    file_url = $6,
		    recipient = $7,
		    employee = $8,
		    sent_at = COALESCE(sent_at, NOW()),
		    updated_at = NOW()
		WHERE id = $9
		RETURNING sent_at, updated_at
	`

	var sentAt, updatedAt time.Time
	err = s.db.QueryRowContext(ctx, query,
		status, reason, job.TemplateContentSid, encContent,
		job.ProviderMessageID, job.FileURL, recipient, employee, job.ID,
	).Scan(&sentAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("failed to mark delivery result: %w", err)
	}

	job.Status = status
	job.FailureReason = reason
	job.SentAt = &sentAt
	job.UpdatedAt = updatedAt

	s.logger.Info("Delivery job result recorded",
		slog.String("job_id", job.ID),
		slog.String("status", status),
	)

	return nil
}

func (s *MessageLogStore) toRow(job *domain.DeliveryJob) (*messageLogRow, error) {
	recipient, err := s.cipher.Encrypt(job.Recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt recipient: %w", err)
	}

	row := &messageLogRow{
		ID:                 job.ID,
		SourceID:           job.SourceID,
		Kind:               job.Kind,
		Recipient:          recipient,
		Month:              job.Period.Month,
		Year:               job.Period.Year,
		DocSeries:          job.Document.Series,
		DocSeparator:       job.Document.Separator,
		DocNumber:          job.Document.Number,
		DocTotal:           job.Document.Total,
		DocIssueDate:       job.Document.IssueDate,
		PaymentMethod:      job.Document.PaymentMethod,
		FileURL:            job.FileURL,
		Status:             job.Status,
		FailureReason:      job.FailureReason,
		TemplateContentSid: job.TemplateContentSid,
		ProviderMessageID:  job.ProviderMessageID,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}

	if job.Employee != nil {
		employee, err := s.cipher.Encrypt(*job.Employee)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt employee: %w", err)
		}
		row.Employee = sql.NullString{String: employee, Valid: true}
	}

	if job.TemplateContent != "" {
		content, err := s.cipher.Encrypt(job.TemplateContent)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt template content: %w", err)
		}
		row.TemplateContent = content
	}

	if job.SentAt != nil {
		row.SentAt = sql.NullTime{Time: *job.SentAt, Valid: true}
	}

	return row, nil
}

// fromRow decrypts a stored row. A field that cannot be decrypted (a
// legacy or corrupted record) is passed through as-is so one bad row
// never blocks a listing.
func (s *MessageLogStore) fromRow(row *messageLogRow) *domain.DeliveryJob {
	job := &domain.DeliveryJob{
		ID:       row.ID,
		SourceID: row.SourceID,
		Kind:     row.Kind,
		Period:   domain.Period{Month: row.Month, Year: row.Year},
		Document: domain.Document{
			Series:        row.DocSeries,
			Separator:     row.DocSeparator,
			Number:        row.DocNumber,
			Total:         row.DocTotal,
			IssueDate:     row.DocIssueDate,
			PaymentMethod: row.PaymentMethod,
		},
		FileURL:            row.FileURL,
		Status:             row.Status,
		FailureReason:      row.FailureReason,
		TemplateContentSid: row.TemplateContentSid,
		TemplateContent:    s.cipher.DecryptString(row.TemplateContent),
		ProviderMessageID:  row.ProviderMessageID,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}

	var recipient domain.Contact
	if err := s.cipher.Decrypt(row.Recipient, &recipient); err != nil {
		s.logger.Warn("Failed to decrypt recipient, passing stored value through",
			slog.String("job_id", row.ID),
		)
		recipient = domain.Contact{FullName: row.Recipient}
	}
	job.Recipient = recipient

	if row.Employee.Valid && row.Employee.String != "" {
		var employee domain.Contact
		if err := s.cipher.Decrypt(row.Employee.String, &employee); err != nil {
			s.logger.Warn("Failed to decrypt employee, passing stored value through",
				slog.String("job_id", row.ID),
			)
			employee = domain.Contact{FullName: row.Employee.String}
		}
		job.Employee = &employee
	}

	if row.SentAt.Valid {
		sentAt := row.SentAt.Time
		job.SentAt = &sentAt
	}

	return job
}
