package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/whatsapp-billing/internal/api/handler"
	"github.com/cuongbtq/whatsapp-billing/internal/contextwindow"
	"github.com/cuongbtq/whatsapp-billing/internal/delivery"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/storage"
)

const testMessageID = "6f1e1a4e-9f6b-4c1a-8a6c-2f8f3b1d9a10"

type fakeMessages struct {
	jobs map[string]*domain.DeliveryJob
}

func (s *fakeMessages) GetByID(_ context.Context, id string) (*domain.DeliveryJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *fakeMessages) List(context.Context, storage.ListFilter) ([]domain.DeliveryJob, error) {
	var out []domain.DeliveryJob
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out, nil
}

type fakeWindows struct {
	active  bool
	inits   int
	inbound []contextwindow.InboundMessage
	swept   int64
}

func (w *fakeWindows) IsActive(context.Context, string) (bool, error) { return w.active, nil }

func (w *fakeWindows) Initialize(_ context.Context, _ string, msg contextwindow.InboundMessage) (*contextwindow.InitResult, error) {
	if w.active {
		return &contextwindow.InitResult{AlreadyActive: true}, nil
	}
	w.inits++
	w.inbound = append(w.inbound, msg)
	return &contextwindow.InitResult{MessageID: "SM-init"}, nil
}

func (w *fakeWindows) SweepExpired(context.Context) (int64, error) { return w.swept, nil }

type fakeHarvester struct {
	invoices int
	payrolls int
}

func (h *fakeHarvester) HarvestInvoices(context.Context) (int, error) { return h.invoices, nil }
func (h *fakeHarvester) HarvestPayrolls(context.Context) (int, error) { return h.payrolls, nil }

type fakeDelivery struct {
	result delivery.RunResult
}

func (d *fakeDelivery) RunBatch(context.Context, domain.Period) (*delivery.RunResult, error) {
	return &d.result, nil
}

func newTestRouter() (*gin.Engine, *fakeWindows) {
	gin.SetMode(gin.TestMode)

	sentAt := time.Date(2026, time.July, 15, 10, 0, 0, 0, time.UTC)
	windows := &fakeWindows{swept: 3}

	deps := &handler.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Messages: &fakeMessages{jobs: map[string]*domain.DeliveryJob{
			testMessageID: {
				ID:       testMessageID,
				SourceID: "src-1",
				Kind:     domain.KindInvoice,
				Recipient: domain.Contact{
					FullName:    "Ana Pérez",
					PhoneNumber: "612345678",
				},
				Period:   domain.Period{Month: 7, Year: 2026},
				Document: domain.Document{Series: "FC", Separator: "-", Number: 118, Total: 523.40},
				Status:   domain.StatusSuccess,
				SentAt:   &sentAt,
			},
		}},
		Windows:   windows,
		Harvester: &fakeHarvester{invoices: 4, payrolls: 2},
		Delivery:  &fakeDelivery{result: delivery.RunResult{Processed: 6, Sent: 5, Failed: 1}},
	}

	return SetupRouter(deps), windows
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRouter_Health_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := SetupRouter(&handler.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Health: func(context.Context) error {
			return errors.New("connection refused")
		},
	})

	rec := doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

func TestRouter_GetMessage(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodGet, "/api/v1/messages/"+testMessageID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"message_id":"`+testMessageID+`"`)
	assert.Contains(t, body, `"full_name":"Ana Pérez"`)
	assert.Contains(t, body, `"document_reference":"FC-118"`)
	assert.Contains(t, body, `"sent_at":"2026-07-15T10:00:00Z"`)
}

func TestRouter_GetMessage_InvalidID(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodGet, "/api/v1/messages/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_GetMessage_NotFound(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodGet, "/api/v1/messages/9c4d5e6f-7a8b-4c0d-9e1f-3a4b5c6d7e8f", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ListMessages(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodGet, "/api/v1/messages?month=7&year=2026", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[`)
}

func TestRouter_ListMessages_InvalidPeriod(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodGet, "/api/v1/messages?month=13&year=2026", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_CheckWindow(t *testing.T) {
	r, windows := newTestRouter()
	windows.active = true

	rec := doRequest(r, http.MethodGet, "/api/v1/context/+34612345678", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":true`)
	assert.Contains(t, rec.Body.String(), `"phone_number":"+34612345678"`)
}

func TestRouter_InitializeWindow(t *testing.T) {
	r, windows := newTestRouter()

	rec := doRequest(r, http.MethodPost, "/api/v1/context/initialize",
		`{"phone_number":"612345678","sender_name":"Ana","sender_phone":"+34698765432","message_body":"Hola, ¿me reenvías la factura?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message_id":"SM-init"`)
	assert.Equal(t, 1, windows.inits)

	require.Len(t, windows.inbound, 1)
	assert.Equal(t, "Ana", windows.inbound[0].SenderName)
	assert.Equal(t, "+34698765432", windows.inbound[0].SenderPhone)
	assert.Equal(t, "Hola, ¿me reenvías la factura?", windows.inbound[0].Body)
}

func TestRouter_InitializeWindow_AlreadyActive(t *testing.T) {
	r, windows := newTestRouter()
	windows.active = true

	rec := doRequest(r, http.MethodPost, "/api/v1/context/initialize",
		`{"phone_number":"612345678"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"already_active":true`)
	assert.Zero(t, windows.inits)
}

func TestRouter_InitializeWindow_MissingPhone(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodPost, "/api/v1/context/initialize", `{"sender_name":"Ana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SweepWindows(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodPost, "/api/v1/context/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":3`)
}

func TestRouter_HarvestTriggers(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodPost, "/api/v1/harvest/invoices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"created":4`)

	rec = doRequest(r, http.MethodPost, "/api/v1/harvest/payrolls", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"created":2`)
}

func TestRouter_RunDelivery(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodPost, "/api/v1/deliveries/run", `{"month":7,"year":2026}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"processed":6`)
	assert.Contains(t, body, `"sent":5`)
	assert.Contains(t, body, `"failed":1`)
}

func TestRouter_RunDelivery_InvalidPeriod(t *testing.T) {
	r, _ := newTestRouter()

	rec := doRequest(r, http.MethodPost, "/api/v1/deliveries/run", `{"month":13,"year":2026}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
