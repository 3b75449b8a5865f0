// Package contextwindow tracks WhatsApp's 24-hour conversation rule.
// Once a business message reaches a recipient, free-form replies are
// deliverable for 24 hours; outside that window only approved templates
// go through. The manager keeps one window per normalized phone number.
package contextwindow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/provider"
)

// WindowDuration is how long a conversation window stays open after a
// message reaches the recipient. Fixed by the WhatsApp platform.
const WindowDuration = 24 * time.Hour

// Store persists context windows.
type Store interface {
	Get(ctx context.Context, phoneNumber string) (*domain.ContextWindow, error)
	Upsert(ctx context.Context, window *domain.ContextWindow) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TemplateSender sends approved template messages.
type TemplateSender interface {
	SendTemplate(ctx context.Context, to, contentSid string, vars map[string]string, mediaURL string) (*provider.Result, error)
}

// Manager owns window bookkeeping and explicit window initialization.
type Manager struct {
	store         Store
	sender        TemplateSender
	initTemplates []string
	logger        *slog.Logger

	now func() time.Time
}

// NewManager creates a Manager. initTemplates are the content SIDs of
// the greeting templates used to open a window on demand.
func NewManager(store Store, sender TemplateSender, initTemplates []string, logger *slog.Logger) *Manager {
	return &Manager{
		store:         store,
		sender:        sender,
		initTemplates: initTemplates,
		logger:        logger,
		now:           time.Now,
	}
}

// NormalizePhone reduces the many shapes a phone number arrives in
// (provider-addressed, spaced, bare national) to a single canonical
// "+E164" key. Every window lookup and write goes through this.
func NormalizePhone(raw string) string {
	number := strings.TrimSpace(raw)
	number = strings.TrimPrefix(number, "whatsapp:")
	number = strings.ReplaceAll(number, " ", "")

	if number != "" && !strings.HasPrefix(number, "+") {
		number = "+" + number
	}

	return number
}

// IsActive reports whether the phone number has an open window right now.
func (m *Manager) IsActive(ctx context.Context, phoneNumber string) (bool, error) {
	window, err := m.store.Get(ctx, NormalizePhone(phoneNumber))
	if err != nil {
		if errors.Is(err, domain.ErrWindowNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check context window: %w", err)
	}

	return window.Active(m.now()), nil
}

// InitResult reports what Initialize did.
type InitResult struct {
	AlreadyActive bool
	MessageID     string
}

// InboundMessage is the message that prompted the window to be opened:
// an external user wrote in, and their note is forwarded inside the
// greeting template while the window re-opens.
type InboundMessage struct {
	SenderName  string
	SenderPhone string
	Body        string
}

// maxExcerptLen bounds the forwarded message body so an essay-length
// inbound text does not blow the template variable.
const maxExcerptLen = 120

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= maxExcerptLen {
		return body
	}
	return string(runes[:maxExcerptLen]) + "…"
}

// Initialize opens a conversation window by sending a greeting template
// carrying the inbound sender's name, number and message excerpt. It is
// idempotent: an already-open window is reported, not re-greeted.
func (m *Manager) Initialize(ctx context.Context, phoneNumber string, msg InboundMessage) (*InitResult, error) {
	phone := NormalizePhone(phoneNumber)
	if phone == "" {
		return nil, fmt.Errorf("phone number cannot be empty")
	}

	active, err := m.IsActive(ctx, phone)
	if err != nil {
		return nil, err
	}
	if active {
		return &InitResult{AlreadyActive: true}, nil
	}

	if len(m.initTemplates) == 0 {
		return nil, fmt.Errorf("no initialization template configured: %w", domain.ErrNoTemplate)
	}
	templateSid := m.initTemplates[rand.Intn(len(m.initTemplates))]

	senderName := msg.SenderName
	if senderName == "" {
		senderName = "Usuario"
	}

	result, err := m.sender.SendTemplate(ctx, phone, templateSid, map[string]string{
		"1": senderName,
		"2": NormalizePhone(msg.SenderPhone),
		"3": excerpt(msg.Body),
	}, "")
	if err != nil {
		return nil, fmt.Errorf("failed to send initialization template: %w", err)
	}

	if err := m.open(ctx, phone, domain.WindowTypeInitialization, templateSid); err != nil {
		return nil, err
	}

	m.logger.Info("Context window initialized",
		slog.String("phone_number", phone),
		slog.String("message_id", result.MessageID),
	)

	return &InitResult{MessageID: result.MessageID}, nil
}

// Renew extends (or opens) the window after a successful send. The
// expiry restarts from now on every delivered message.
func (m *Manager) Renew(ctx context.Context, phoneNumber, messageType, templateSid string) error {
	phone := NormalizePhone(phoneNumber)
	if phone == "" {
		return fmt.Errorf("phone number cannot be empty")
	}

	return m.open(ctx, phone, messageType, templateSid)
}

// SweepExpired drops every window already past its expiry.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

func (m *Manager) open(ctx context.Context, phone, messageType, templateSid string) error {
	now := m.now()
	window := &domain.ContextWindow{
		PhoneNumber:   phone,
		InitializedAt: now,
		ExpiresAt:     now.Add(WindowDuration),
		TemplateSid:   templateSid,
		MessageType:   messageType,
		Status:        domain.WindowActive,
	}

	if err := m.store.Upsert(ctx, window); err != nil {
		return fmt.Errorf("failed to persist context window: %w", err)
	}
	return nil
}
