package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/whatsapp-billing/internal/domain"
)

// ContextWindowStore tracks the 24-hour WhatsApp conversation windows,
// keyed by normalized phone number.
type ContextWindowStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewContextWindowStore creates a ContextWindowStore.
func NewContextWindowStore(db *sqlx.DB, logger *slog.Logger) *ContextWindowStore {
	return &ContextWindowStore{
		db:     db,
		logger: logger,
	}
}

type contextWindowRow struct {
	PhoneNumber   string    `db:"phone_number"`
	InitializedAt time.Time `db:"initialized_at"`
	ExpiresAt     time.Time `db:"expires_at"`
	TemplateSid   string    `db:"template_sid"`
	MessageType   string    `db:"message_type"`
	Status        string    `db:"status"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Get returns the window for a phone number, or domain.ErrWindowNotFound.
func (s *ContextWindowStore) Get(ctx context.Context, phoneNumber string) (*domain.ContextWindow, error) {
	query := `
		SELECT phone_number, initialized_at, expires_at, template_sid, message_type, status, updated_at
		FROM context_windows
		WHERE phone_number = $1
	`

	var row contextWindowRow
	if err := s.db.GetContext(ctx, &row, query, phoneNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to get context window: %w", err)
	}

	return &domain.ContextWindow{
		PhoneNumber:   row.PhoneNumber,
		InitializedAt: row.InitializedAt,
		ExpiresAt:     row.ExpiresAt,
		TemplateSid:   row.TemplateSid,
		MessageType:   row.MessageType,
		Status:        row.Status,
	}, nil
}

// Upsert writes a window, replacing any previous one for the same phone
// number. Each send renews the window through this path.
func (s *ContextWindowStore) Upsert(ctx context.Context, window *domain.ContextWindow) error {
	query := `
		INSERT INTO context_windows
			(phone_number, initialized_at, expires_at, template_sid, message_type, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (phone_number) DO UPDATE SET
			initialized_at = EXCLUDED.initialized_at,
			expires_at = EXCLUDED.expires_at,
			template_sid = EXCLUDED.template_sid,
			message_type = EXCLUDED.message_type,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		window.PhoneNumber, window.InitializedAt, window.ExpiresAt,
		window.TemplateSid, window.MessageType, window.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert context window: %w", err)
	}

	s.logger.Debug("Context window upserted",
		slog.String("phone_number", window.PhoneNumber),
		slog.Time("expires_at", window.ExpiresAt),
	)

	return nil
}

// DeleteExpired removes every window whose expiry is in the past and
// returns how many were swept.
func (s *ContextWindowStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM context_windows WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired context windows: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted context windows: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Expired context windows swept",
			slog.Int64("deleted", deleted),
		)
	}

	return deleted, nil
}
