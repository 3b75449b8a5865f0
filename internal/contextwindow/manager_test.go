package contextwindow

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/provider"
)

type memoryStore struct {
	windows map[string]domain.ContextWindow
}

func newMemoryStore() *memoryStore {
	return &memoryStore{windows: make(map[string]domain.ContextWindow)}
}

func (s *memoryStore) Get(_ context.Context, phone string) (*domain.ContextWindow, error) {
	window, ok := s.windows[phone]
	if !ok {
		return nil, domain.ErrWindowNotFound
	}
	return &window, nil
}

func (s *memoryStore) Upsert(_ context.Context, window *domain.ContextWindow) error {
	s.windows[window.PhoneNumber] = *window
	return nil
}

func (s *memoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var deleted int64
	for phone, window := range s.windows {
		if !window.ExpiresAt.After(now) {
			delete(s.windows, phone)
			deleted++
		}
	}
	return deleted, nil
}

type fakeSender struct {
	calls []string
	vars  []map[string]string
	fail  bool
}

func (s *fakeSender) SendTemplate(_ context.Context, to, contentSid string, vars map[string]string, _ string) (*provider.Result, error) {
	s.calls = append(s.calls, to+"|"+contentSid)
	s.vars = append(s.vars, vars)
	if s.fail {
		return nil, assert.AnError
	}
	return &provider.Result{MessageID: "SM-init", Status: "queued"}, nil
}

func newTestManager(store Store, sender TemplateSender, at time.Time) *Manager {
	m := NewManager(store, sender, []string{"HX_init"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return at }
	return m
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"provider addressed", "whatsapp:+34612345678", "+34612345678"},
		{"already normalized", "+34612345678", "+34612345678"},
		{"missing plus", "34612345678", "+34612345678"},
		{"spaces", " +34 612 345 678 ", "+34612345678"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestManager_IsActive(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	m := newTestManager(store, &fakeSender{}, now)

	active, err := m.IsActive(context.Background(), "+34612345678")
	require.NoError(t, err)
	assert.False(t, active, "unknown number has no window")

	require.NoError(t, m.Renew(context.Background(), "whatsapp:+34612345678", domain.WindowTypeInvoice, "HX1"))

	active, err = m.IsActive(context.Background(), "34612345678")
	require.NoError(t, err)
	assert.True(t, active, "all spellings of the number share one window")
}

func TestManager_IsActive_ExpiredWindow(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	m := newTestManager(store, &fakeSender{}, now)

	require.NoError(t, m.Renew(context.Background(), "+34612345678", domain.WindowTypeInvoice, "HX1"))

	m.now = func() time.Time { return now.Add(WindowDuration + time.Minute) }
	active, err := m.IsActive(context.Background(), "+34612345678")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestManager_Initialize(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	sender := &fakeSender{}
	m := newTestManager(store, sender, now)

	result, err := m.Initialize(context.Background(), "612345678", InboundMessage{
		SenderName:  "Ana",
		SenderPhone: "whatsapp:+34698765432",
		Body:        "  Hola, ¿me reenvías la factura de julio?  ",
	})
	require.NoError(t, err)
	assert.False(t, result.AlreadyActive)
	assert.Equal(t, "SM-init", result.MessageID)
	require.Len(t, sender.calls, 1)
	assert.Equal(t, "+612345678|HX_init", sender.calls[0])

	// The greeting forwards who wrote in and what they said.
	require.Len(t, sender.vars, 1)
	assert.Equal(t, "Ana", sender.vars[0]["1"])
	assert.Equal(t, "+34698765432", sender.vars[0]["2"])
	assert.Equal(t, "Hola, ¿me reenvías la factura de julio?", sender.vars[0]["3"])

	window := store.windows["+612345678"]
	assert.Equal(t, domain.WindowActive, window.Status)
	assert.Equal(t, now.Add(WindowDuration), window.ExpiresAt)
	assert.Equal(t, domain.WindowTypeInitialization, window.MessageType)
}

func TestManager_Initialize_LongBodyTruncated(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	m := newTestManager(newMemoryStore(), sender, now)

	_, err := m.Initialize(context.Background(), "+34612345678", InboundMessage{
		SenderPhone: "698765432",
		Body:        strings.Repeat("ñ", maxExcerptLen+40),
	})
	require.NoError(t, err)

	require.Len(t, sender.vars, 1)
	assert.Equal(t, "Usuario", sender.vars[0]["1"], "a nameless sender gets the generic greeting")
	got := []rune(sender.vars[0]["3"])
	assert.Len(t, got, maxExcerptLen+1)
	assert.Equal(t, '…', got[maxExcerptLen])
}

func TestManager_Initialize_Idempotent(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	m := newTestManager(newMemoryStore(), sender, now)

	_, err := m.Initialize(context.Background(), "+34612345678", InboundMessage{SenderName: "Ana"})
	require.NoError(t, err)

	result, err := m.Initialize(context.Background(), "+34612345678", InboundMessage{SenderName: "Ana"})
	require.NoError(t, err)
	assert.True(t, result.AlreadyActive)
	assert.Len(t, sender.calls, 1, "an open window must not be re-greeted")
}

func TestManager_Initialize_SendFailureLeavesNoWindow(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	m := newTestManager(store, &fakeSender{fail: true}, now)

	_, err := m.Initialize(context.Background(), "+34612345678", InboundMessage{SenderName: "Ana"})
	require.Error(t, err)
	assert.Empty(t, store.windows, "a failed greeting must not open a window")
}

func TestManager_Renew_ExtendsExpiry(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	m := newTestManager(store, &fakeSender{}, now)

	require.NoError(t, m.Renew(context.Background(), "+34612345678", domain.WindowTypeInvoice, "HX1"))

	later := now.Add(6 * time.Hour)
	m.now = func() time.Time { return later }
	require.NoError(t, m.Renew(context.Background(), "+34612345678", domain.WindowTypePayroll, "HX2"))

	window := store.windows["+34612345678"]
	assert.Equal(t, later.Add(WindowDuration), window.ExpiresAt, "each send restarts the 24h clock")
	assert.Equal(t, domain.WindowTypePayroll, window.MessageType)
}

func TestManager_SweepExpired(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	m := newTestManager(store, &fakeSender{}, now)

	require.NoError(t, m.Renew(context.Background(), "+34611111111", domain.WindowTypeInvoice, "HX1"))
	require.NoError(t, m.Renew(context.Background(), "+34622222222", domain.WindowTypeInvoice, "HX1"))

	m.now = func() time.Time { return now.Add(WindowDuration + time.Second) }
	deleted, err := m.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
	assert.Empty(t, store.windows)
}
