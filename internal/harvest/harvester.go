// Package harvest pulls billing records out of the portal and turns the
// admissible ones into persisted delivery jobs. Harvesting is the only
// producer of jobs; the delivery worker is the only consumer.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/notify"
	"github.com/cuongbtq/whatsapp-billing/internal/portal"
	"github.com/cuongbtq/whatsapp-billing/internal/retry"
)

// Portal is the slice of the session API the harvester needs.
type Portal interface {
	EstablishCookie(ctx context.Context) int
	Login(ctx context.Context) int
	Logout(ctx context.Context)
	ListInvoices(ctx context.Context, year, month int) ([]portal.InvoiceRecord, error)
	ListPayrolls(ctx context.Context, year, month int) ([]portal.PayrollRecord, error)
	GetUser(ctx context.Context, userID string) (*portal.UserProfile, error)
	GetEmployee(ctx context.Context, employeeID string) (*portal.EmployeeProfile, error)
}

// JobStore persists the jobs the harvester produces.
type JobStore interface {
	Save(ctx context.Context, job *domain.DeliveryJob) error
}

// Config holds harvester pacing and retry settings.
type Config struct {
	MonthsBack    int
	RecordDelay   time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	LoginAttempts int
	LoginDelay    time.Duration
}

// Harvester walks portal listings and persists delivery jobs.
type Harvester struct {
	portal   Portal
	store    JobStore
	notifier notify.Notifier
	config   *Config
	logger   *slog.Logger

	now func() time.Time
}

// NewHarvester creates a Harvester.
func NewHarvester(p Portal, store JobStore, notifier notify.Notifier, config *Config, logger *slog.Logger) *Harvester {
	return &Harvester{
		portal:   p,
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// HarvestInvoices harvests the configured periods' invoices and returns
// how many delivery jobs were created. The portal session is opened for
// the whole sweep and released at the end.
func (h *Harvester) HarvestInvoices(ctx context.Context) (int, error) {
	if err := h.connect(ctx); err != nil {
		return 0, err
	}
	defer h.portal.Logout(ctx)

	created := 0
	for _, period := range domain.PeriodsBack(h.now(), h.config.MonthsBack) {
		records, err := retry.Do(ctx, h.retryAttempts(), h.config.RetryDelay,
			func(ctx context.Context) ([]portal.InvoiceRecord, error) {
				return h.portal.ListInvoices(ctx, period.Year, period.Month)
			})
		if err != nil {
			h.logger.Error("Failed to list invoices",
				slog.Int("year", period.Year),
				slog.Int("month", period.Month),
				slog.Any("error", err),
			)
			continue
		}

		h.logger.Info("Invoice listing fetched",
			slog.String("period", period.Name()),
			slog.Int("records", len(records)),
		)

		for i := range records {
			n := h.harvestInvoice(ctx, &records[i], period)
			created += n
			// The pause paces portal writes; skipped records cost nothing.
			if n > 0 {
				if err := h.pause(ctx); err != nil {
					return created, err
				}
			}
		}
	}

	return created, nil
}

// HarvestPayrolls harvests the configured periods' payrolls.
func (h *Harvester) HarvestPayrolls(ctx context.Context) (int, error) {
	if err := h.connect(ctx); err != nil {
		return 0, err
	}
	defer h.portal.Logout(ctx)

	created := 0
	for _, period := range domain.PeriodsBack(h.now(), h.config.MonthsBack) {
		records, err := retry.Do(ctx, h.retryAttempts(), h.config.RetryDelay,
			func(ctx context.Context) ([]portal.PayrollRecord, error) {
				return h.portal.ListPayrolls(ctx, period.Year, period.Month)
			})
		if err != nil {
			h.logger.Error("Failed to list payrolls",
				slog.Int("year", period.Year),
				slog.Int("month", period.Month),
				slog.Any("error", err),
			)
			continue
		}

		h.logger.Info("Payroll listing fetched",
			slog.String("period", period.Name()),
			slog.Int("records", len(records)),
		)

		for i := range records {
			n := h.harvestPayroll(ctx, &records[i], period)
			created += n
			if n > 0 {
				if err := h.pause(ctx); err != nil {
					return created, err
				}
			}
		}
	}

	return created, nil
}

func (h *Harvester) harvestInvoice(ctx context.Context, rec *portal.InvoiceRecord, period domain.Period) int {
	if ok, reason := admitInvoice(rec); !ok {
		h.logger.Debug("Invoice skipped",
			slog.String("invoice_id", rec.ID),
			slog.String("reason", reason),
		)
		return 0
	}

	user, err := retry.Do(ctx, h.retryAttempts(), h.config.RetryDelay,
		func(ctx context.Context) (*portal.UserProfile, error) {
			return h.portal.GetUser(ctx, rec.UserID)
		})
	if err != nil {
		h.logger.Error("Failed to fetch invoice owner",
			slog.String("invoice_id", rec.ID),
			slog.String("user_id", rec.UserID),
			slog.Any("error", err),
		)
		return 0
	}

	document := domain.Document{
		Series:        rec.Series,
		Separator:     rec.Separator,
		Number:        rec.Number,
		Total:         rec.Total,
		IssueDate:     rec.IssueDate,
		PaymentMethod: rec.PaymentMethod,
	}

	created := 0
	for _, recipient := range userContacts(rec.UserID, user) {
		job := &domain.DeliveryJob{
			SourceID:  rec.ID,
			Kind:      domain.KindInvoice,
			Recipient: recipient,
			Period:    period,
			Document:  document,
		}

		if err := h.store.Save(ctx, job); err != nil {
			h.logger.Error("Failed to save invoice job",
				slog.String("invoice_id", rec.ID),
				slog.Any("error", err),
			)
			continue
		}
		created++
	}

	if created == 0 {
		h.logger.Debug("Invoice owner has no usable contact",
			slog.String("invoice_id", rec.ID),
		)
	}

	return created
}

func (h *Harvester) harvestPayroll(ctx context.Context, rec *portal.PayrollRecord, period domain.Period) int {
	if ok, reason := admitPayroll(rec); !ok {
		h.logger.Debug("Payroll skipped",
			slog.String("payroll_id", rec.ID),
			slog.String("reason", reason),
		)
		return 0
	}

	employer, err := retry.Do(ctx, h.retryAttempts(), h.config.RetryDelay,
		func(ctx context.Context) (*portal.UserProfile, error) {
			return h.portal.GetUser(ctx, rec.EmployerID)
		})
	if err != nil {
		h.logger.Error("Failed to fetch payroll employer",
			slog.String("payroll_id", rec.ID),
			slog.Any("error", err),
		)
		return 0
	}

	employee, err := retry.Do(ctx, h.retryAttempts(), h.config.RetryDelay,
		func(ctx context.Context) (*portal.EmployeeProfile, error) {
			return h.portal.GetEmployee(ctx, rec.EmployeeID)
		})
	if err != nil {
		h.logger.Error("Failed to fetch payroll employee",
			slog.String("payroll_id", rec.ID),
			slog.Any("error", err),
		)
		return 0
	}

	var employeeContact *domain.Contact
	if phone, ok := contactPhone(employee.Phone); ok {
		employeeContact = &domain.Contact{
			ExternalID:  rec.EmployeeID,
			FullName:    strings.TrimSpace(employee.Name),
			PhoneNumber: phone,
		}
	}

	created := 0
	for i, recipient := range userContacts(rec.EmployerID, employer) {
		job := &domain.DeliveryJob{
			SourceID:  rec.ID,
			Kind:      domain.KindPayroll,
			Recipient: recipient,
			Period:    period,
		}

		// Only the primary job addresses the employee; the secondary
		// contact's copy would duplicate the employee's message.
		if i == 0 {
			job.Employee = employeeContact
		}

		if err := h.store.Save(ctx, job); err != nil {
			h.logger.Error("Failed to save payroll job",
				slog.String("payroll_id", rec.ID),
				slog.Any("error", err),
			)
			continue
		}
		created++
	}

	if created == 0 {
		h.logger.Debug("Payroll employer has no usable contact",
			slog.String("payroll_id", rec.ID),
		)
	}

	return created
}

// userContacts turns a user profile into delivery recipients: the
// primary contact, plus the secondary pair when both its fields are set.
func userContacts(userID string, user *portal.UserProfile) []domain.Contact {
	var contacts []domain.Contact

	if phone, ok := contactPhone(user.Phone); ok {
		fullName := strings.TrimSpace(strings.TrimSpace(user.Name) + " " + strings.TrimSpace(user.LastName))
		contacts = append(contacts, domain.Contact{
			ExternalID:  userID,
			FullName:    fullName,
			PhoneNumber: phone,
		})
	}

	if phone, ok := contactPhone(user.Phone2); ok && strings.TrimSpace(user.Name2) != "" {
		contacts = append(contacts, domain.Contact{
			ExternalID:  userID,
			FullName:    strings.TrimSpace(user.Name2),
			PhoneNumber: phone,
		})
	}

	return contacts
}

// connect opens an authenticated portal session: cookie first, then the
// form login, each with bounded retries. An exhausted login aborts the
// sweep, and the operator hears about it.
func (h *Harvester) connect(ctx context.Context) error {
	attempts := h.config.LoginAttempts
	if attempts < 1 {
		attempts = 3
	}

	_, err := retry.Do(ctx, attempts, h.config.LoginDelay,
		func(ctx context.Context) (int, error) {
			if status := h.portal.EstablishCookie(ctx); status != http.StatusOK {
				return status, fmt.Errorf("portal cookie request answered %d", status)
			}
			return http.StatusOK, nil
		})
	if err != nil {
		h.notifier.Notify(ctx, "No se pudo hacer login después de varios intentos.")
		return fmt.Errorf("failed to establish portal cookie: %w", err)
	}

	_, err = retry.Do(ctx, attempts, h.config.LoginDelay,
		func(ctx context.Context) (int, error) {
			if status := h.portal.Login(ctx); status != http.StatusOK {
				return status, fmt.Errorf("portal login answered %d", status)
			}
			return http.StatusOK, nil
		})
	if err != nil {
		h.notifier.Notify(ctx, "No se pudo hacer login después de varios intentos.")
		return fmt.Errorf("failed to log in to portal: %w", err)
	}

	return nil
}

func (h *Harvester) retryAttempts() int {
	if h.config.RetryAttempts < 1 {
		return 3
	}
	return h.config.RetryAttempts
}

// pause is the inter-record delay that keeps the sweep from hammering
// the portal.
func (h *Harvester) pause(ctx context.Context) error {
	if h.config.RecordDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(h.config.RecordDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
