// Package delivery drains pending jobs in rate-limited batches, sends
// them through the messaging provider and reconciles the outcome back
// into the portal's workflow status.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/cuongbtq/whatsapp-billing/internal/contextwindow"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/events"
	"github.com/cuongbtq/whatsapp-billing/internal/notify"
	"github.com/cuongbtq/whatsapp-billing/internal/provider"
	"github.com/cuongbtq/whatsapp-billing/internal/retry"
)

// JobStore is the slice of the message log the worker needs.
type JobStore interface {
	FindPending(ctx context.Context, period domain.Period) ([]domain.DeliveryJob, error)
	MarkResult(ctx context.Context, job *domain.DeliveryJob, status, reason string) error
}

// Sender sends template messages.
type Sender interface {
	SendTemplate(ctx context.Context, to, contentSid string, vars map[string]string, mediaURL string) (*provider.Result, error)
}

// Windows renews conversation windows after successful sends.
type Windows interface {
	Renew(ctx context.Context, phoneNumber, messageType, templateSid string) error
}

// Portal is the slice of the session API reconciliation needs.
type Portal interface {
	EstablishCookie(ctx context.Context) int
	Login(ctx context.Context) int
	Logout(ctx context.Context)
	SetInvoiceWhatsappStatus(ctx context.Context, invoiceID, status string) error
	SetPayrollWhatsappStatus(ctx context.Context, payrollID, status string) error
}

// Config holds worker pacing settings.
type Config struct {
	BatchSize       int
	MinMessageDelay time.Duration
	MaxMessageDelay time.Duration
	BatchPause      time.Duration
	ReconcileDelay  time.Duration
	MediaBaseURL    string
}

// RunResult summarizes one delivery run.
type RunResult struct {
	Processed int
	Sent      int
	Failed    int
}

// Worker drains one period's pending jobs per run.
type Worker struct {
	store     JobStore
	sender    Sender
	windows   Windows
	portal    Portal
	publisher events.Publisher
	notifier  notify.Notifier
	templates Templates
	config    *Config
	logger    *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(
	store JobStore,
	sender Sender,
	windows Windows,
	portal Portal,
	publisher events.Publisher,
	notifier notify.Notifier,
	templates Templates,
	config *Config,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		store:     store,
		sender:    sender,
		windows:   windows,
		portal:    portal,
		publisher: publisher,
		notifier:  notifier,
		templates: templates,
		config:    config,
		logger:    logger,
	}
}

// RunBatch delivers every pending job of the period, paced in batches,
// then reconciles outcomes to the portal and notifies the operator. A
// job gets exactly one delivery attempt per run; failures wait for the
// next harvest + run cycle.
func (w *Worker) RunBatch(ctx context.Context, period domain.Period) (*RunResult, error) {
	jobs, err := w.store.FindPending(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending jobs: %w", err)
	}

	result := &RunResult{Processed: len(jobs)}
	if len(jobs) == 0 {
		w.logger.Info("No pending jobs for period",
			slog.String("period", period.Name()),
		)
		return result, nil
	}

	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = 30
	}

	w.logger.Info("Delivery run started",
		slog.String("period", period.Name()),
		slog.Int("jobs", len(jobs)),
		slog.Int("batch_size", batchSize),
	)

	for start := 0; start < len(jobs); start += batchSize {
		end := min(start+batchSize, len(jobs))

		for i := start; i < end; i++ {
			job := &jobs[i]
			if w.deliver(ctx, job) {
				result.Sent++
			} else {
				result.Failed++
			}
			w.publishOutcome(ctx, job)

			if i < end-1 {
				if err := w.sleep(ctx, w.messageDelay()); err != nil {
					return result, err
				}
			}
		}

		if end < len(jobs) {
			if err := w.sleep(ctx, w.config.BatchPause); err != nil {
				return result, err
			}
		}
	}

	w.reconcile(ctx, jobs)

	w.notifier.Notify(ctx, fmt.Sprintf(
		"Reparto de %s completado: %d enviados, %d con error",
		period.Name(), result.Sent, result.Failed,
	))

	w.logger.Info("Delivery run finished",
		slog.String("period", period.Name()),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
	)

	return result, nil
}

// deliver sends one job. Payroll jobs carrying an employee contact send
// two messages; both must go through for the job to count as sent.
func (w *Worker) deliver(ctx context.Context, job *domain.DeliveryJob) bool {
	var (
		family     string
		sids       []string
		vars       map[string]string
		windowType string
	)

	switch job.Kind {
	case domain.KindPayroll:
		family = "payroll_user"
		sids = w.templates.PayrollUser
		vars = payrollUserVars(job)
		windowType = domain.WindowTypePayroll
	default:
		family = "invoice"
		sids = w.templates.Invoice
		vars = invoiceVars(job)
		windowType = domain.WindowTypeInvoice
	}

	sid, err := pickTemplate(family, sids)
	if err != nil {
		return w.markFailure(ctx, job, err.Error())
	}

	if job.FileURL == "" {
		job.FileURL = w.documentURL(job)
	}

	result, err := w.sender.SendTemplate(ctx, job.Recipient.PhoneNumber, sid, vars, job.FileURL)
	if err != nil {
		return w.markFailure(ctx, job, err.Error())
	}

	job.TemplateContentSid = sid
	job.TemplateContent = renderContent(family, vars)
	job.Recipient.LastMessage = job.TemplateContent
	job.ProviderMessageID = result.MessageID
	w.renewWindow(ctx, job.Recipient.PhoneNumber, windowType, sid)

	if job.Kind == domain.KindPayroll && job.Employee != nil {
		employeeSid, err := pickTemplate("payroll_employee", w.templates.PayrollEmployee)
		if err != nil {
			return w.markFailure(ctx, job, err.Error())
		}

		employeeVars := payrollEmployeeVars(job)
		if _, err := w.sender.SendTemplate(ctx, job.Employee.PhoneNumber, employeeSid, employeeVars, job.FileURL); err != nil {
			return w.markFailure(ctx, job, fmt.Sprintf("employee message failed: %v", err))
		}
		job.Employee.LastMessage = renderContent("payroll_employee", employeeVars)
		w.renewWindow(ctx, job.Employee.PhoneNumber, domain.WindowTypePayrollEmployee, employeeSid)
	}

	if err := w.store.MarkResult(ctx, job, domain.StatusSuccess, ""); err != nil {
		w.logger.Error("Failed to persist delivery success",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}

	return true
}

func (w *Worker) markFailure(ctx context.Context, job *domain.DeliveryJob, reason string) bool {
	w.logger.Warn("Delivery attempt failed",
		slog.String("job_id", job.ID),
		slog.String("reason", reason),
	)

	if err := w.store.MarkResult(ctx, job, domain.StatusFailure, reason); err != nil {
		w.logger.Error("Failed to persist delivery failure",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}

	return false
}

func (w *Worker) renewWindow(ctx context.Context, phone, messageType, sid string) {
	if err := w.windows.Renew(ctx, phone, messageType, sid); err != nil {
		w.logger.Warn("Failed to renew context window",
			slog.String("phone_number", contextwindow.NormalizePhone(phone)),
			slog.Any("error", err),
		)
	}
}

// reconcile writes each source record's final workflow status back to
// the portal: ENVIADO when every job of the record went out, ERROR
// otherwise. Reconciliation failures are logged and dropped; the portal
// re-offers the record on the next harvest.
func (w *Worker) reconcile(ctx context.Context, jobs []domain.DeliveryJob) {
	type outcome struct {
		kind       string
		allSuccess bool
	}

	order := make([]string, 0, len(jobs))
	outcomes := make(map[string]*outcome, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		o, ok := outcomes[job.SourceID]
		if !ok {
			o = &outcome{kind: job.Kind, allSuccess: true}
			outcomes[job.SourceID] = o
			order = append(order, job.SourceID)
		}
		o.allSuccess = o.allSuccess && job.Status == domain.StatusSuccess
	}

	if status := w.portal.EstablishCookie(ctx); status != http.StatusOK {
		w.logger.Error("Reconciliation skipped: portal unreachable",
			slog.Int("status", status),
		)
		return
	}
	if status := w.portal.Login(ctx); status != http.StatusOK {
		w.logger.Error("Reconciliation skipped: portal login failed",
			slog.Int("status", status),
		)
		return
	}
	defer w.portal.Logout(ctx)

	for _, sourceID := range order {
		o := outcomes[sourceID]

		status := domain.WorkflowError
		if o.allSuccess {
			status = domain.WorkflowSent
		}

		_, err := retry.Do(ctx, 3, w.config.ReconcileDelay,
			func(ctx context.Context) (struct{}, error) {
				if o.kind == domain.KindPayroll {
					return struct{}{}, w.portal.SetPayrollWhatsappStatus(ctx, sourceID, status)
				}
				return struct{}{}, w.portal.SetInvoiceWhatsappStatus(ctx, sourceID, status)
			})
		if err != nil {
			w.logger.Error("Failed to reconcile workflow status",
				slog.String("source_id", sourceID),
				slog.String("status", status),
				slog.Any("error", err),
			)
		}

		if err := w.sleep(ctx, w.config.ReconcileDelay); err != nil {
			return
		}
	}
}

func (w *Worker) publishOutcome(ctx context.Context, job *domain.DeliveryJob) {
	event := events.OutcomeEvent{
		JobID:             job.ID,
		SourceID:          job.SourceID,
		Kind:              job.Kind,
		Month:             job.Period.Month,
		Year:              job.Period.Year,
		Status:            job.Status,
		FailureReason:     job.FailureReason,
		ProviderMessageID: job.ProviderMessageID,
		SentAt:            job.SentAt,
	}

	if err := w.publisher.Publish(ctx, event); err != nil {
		w.logger.Warn("Failed to publish outcome event",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

// documentURL points the message's media attachment at the published
// document for this record.
func (w *Worker) documentURL(job *domain.DeliveryJob) string {
	if w.config.MediaBaseURL == "" {
		return ""
	}

	folder := "facturas"
	if job.Kind == domain.KindPayroll {
		folder = "nominas"
	}

	return fmt.Sprintf("%s/%s/%s.pdf", w.config.MediaBaseURL, folder, job.SourceID)
}

// messageDelay returns the randomized inter-message pause.
func (w *Worker) messageDelay() time.Duration {
	minDelay, maxDelay := w.config.MinMessageDelay, w.config.MaxMessageDelay
	if maxDelay <= minDelay {
		return minDelay
	}
	return minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)))
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
