package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifier_Notify(t *testing.T) {
	var gotChatID, gotText string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotChatID = r.PostFormValue("chat_id")
		gotText = r.PostFormValue("text")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier(&TelegramConfig{
		Token:   "test-token",
		ChatID:  "12345",
		BaseURL: server.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.Notify(context.Background(), "Envio de Julio 2026 completado: 12 enviados, 1 fallido")

	assert.Equal(t, "12345", gotChatID)
	assert.Equal(t, "Envio de Julio 2026 completado: 12 enviados, 1 fallido", gotText)
}

func TestTelegramNotifier_Notify_ErrorsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewTelegramNotifier(&TelegramConfig{
		Token:   "test-token",
		ChatID:  "12345",
		BaseURL: server.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Must not panic or propagate anything.
	n.Notify(context.Background(), "hola")
}

func TestTelegramNotifier_Notify_UnconfiguredDropsSilently(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	n := NewTelegramNotifier(&TelegramConfig{BaseURL: server.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Notify(context.Background(), "hola")

	assert.EqualValues(t, 0, calls.Load())
}
