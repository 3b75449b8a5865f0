package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TwilioClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewTwilioClient(&Config{
		AccountSid:     "AC00000000000000000000000000000000",
		AuthToken:      "token",
		WhatsappNumber: "whatsapp:+14155238886",
		DefaultPrefix:  "+34",
		BaseURL:        server.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return client
}

func TestNewTwilioClient_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewTwilioClient(&Config{WhatsappNumber: "whatsapp:+1"}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")

	_, err = NewTwilioClient(&Config{AccountSid: "AC", AuthToken: "t"}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whatsapp number")
}

func TestTwilioClient_SendTemplate(t *testing.T) {
	var gotForm map[string]string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":               r.PostFormValue("To"),
			"From":             r.PostFormValue("From"),
			"ContentSid":       r.PostFormValue("ContentSid"),
			"ContentVariables": r.PostFormValue("ContentVariables"),
			"MediaUrl":         r.PostFormValue("MediaUrl"),
		}

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC00000000000000000000000000000000", user)
		assert.Equal(t, "token", pass)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	})

	result, err := client.SendTemplate(context.Background(), "612345678", "HX1", map[string]string{
		"1": "Ana",
		"2": "Julio",
	}, "https://files.example.com/doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, "SM123", result.MessageID)
	assert.Equal(t, "queued", result.Status)
	assert.Equal(t, "whatsapp:+34612345678", gotForm["To"])
	assert.Equal(t, "whatsapp:+14155238886", gotForm["From"])
	assert.Equal(t, "HX1", gotForm["ContentSid"])
	assert.Equal(t, "https://files.example.com/doc.pdf", gotForm["MediaUrl"])

	var vars map[string]string
	require.NoError(t, json.Unmarshal([]byte(gotForm["ContentVariables"]), &vars))
	assert.Equal(t, "Ana", vars["1"])
}

func TestTwilioClient_SendTemplate_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":63016,"message":"Failed to send freeform message"}`))
	})

	_, err := client.SendTemplate(context.Background(), "+34612345678", "HX1", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "63016")
	assert.Contains(t, err.Error(), "Failed to send freeform message")
}

func TestTwilioClient_SendText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hola", r.PostFormValue("Body"))
		assert.Empty(t, r.PostFormValue("ContentSid"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM456","status":"queued"}`))
	})

	result, err := client.SendText(context.Background(), "whatsapp:+34612345678", "hola", "")
	require.NoError(t, err)
	assert.Equal(t, "SM456", result.MessageID)
}

func TestTwilioClient_FormatWhatsAppNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare national number", "612345678", "whatsapp:+34612345678"},
		{"already international", "+34612345678", "whatsapp:+34612345678"},
		{"already addressed", "whatsapp:+34612345678", "whatsapp:+34612345678"},
		{"spaces stripped", " 612 345 678 ", "whatsapp:+34612345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.FormatWhatsAppNumber(tt.in))
		})
	}
}
