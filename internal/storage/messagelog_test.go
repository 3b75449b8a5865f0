package storage

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/whatsapp-billing/internal/crypto"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
)

const (
	testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testIV  = "0123456789abcdef0123456789abcdef"
)

func newTestStore(t *testing.T) *MessageLogStore {
	t.Helper()

	cipher, err := crypto.New(testKey, testIV)
	require.NoError(t, err)
	return NewMessageLogStore(nil, cipher, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMessageLogStore_RowRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sentAt := time.Date(2026, time.July, 15, 10, 0, 0, 0, time.UTC)

	job := &domain.DeliveryJob{
		ID:       "job-1",
		SourceID: "src-1",
		Kind:     domain.KindPayroll,
		Recipient: domain.Contact{
			ExternalID:  "user-1",
			FullName:    "Ana Pérez",
			PhoneNumber: "+34612345678",
			LastMessage: "payroll_user | Ana Pérez | Carmen Ruiz | Julio 2026",
		},
		Employee: &domain.Contact{
			ExternalID:  "emp-1",
			FullName:    "Carmen Ruiz",
			PhoneNumber: "+34633333333",
			LastMessage: "payroll_employee | Carmen Ruiz | Julio 2026",
		},
		Period:             domain.Period{Month: 7, Year: 2026},
		Document:           domain.Document{Series: "FC", Separator: "-", Number: 118, Total: 523.40},
		FileURL:            "https://files.example.com/doc.pdf",
		Status:             domain.StatusSuccess,
		TemplateContentSid: "HX1",
		TemplateContent:    "invoice | Ana Pérez | Julio 2026",
		ProviderMessageID:  "SM123",
		SentAt:             &sentAt,
		CreatedAt:          sentAt.Add(-time.Hour),
		UpdatedAt:          sentAt,
	}

	row, err := store.toRow(job)
	require.NoError(t, err)

	// Sensitive columns never hold plaintext.
	assert.NotContains(t, row.Recipient, "Ana")
	assert.NotContains(t, row.Recipient, "612345678")
	require.True(t, row.Employee.Valid)
	assert.NotContains(t, row.Employee.String, "Carmen")
	assert.NotContains(t, row.TemplateContent, "Julio")

	got := store.fromRow(row)
	assert.Equal(t, job.Recipient, got.Recipient)
	require.NotNil(t, got.Employee)
	assert.Equal(t, *job.Employee, *got.Employee)
	assert.Equal(t, job.TemplateContent, got.TemplateContent)
	assert.Equal(t, job.Document, got.Document)
	assert.Equal(t, job.Period, got.Period)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(sentAt))
}

func TestMessageLogStore_RowWithoutEmployee(t *testing.T) {
	store := newTestStore(t)

	job := &domain.DeliveryJob{
		ID:        "job-1",
		SourceID:  "src-1",
		Kind:      domain.KindInvoice,
		Recipient: domain.Contact{FullName: "Ana", PhoneNumber: "+34612345678"},
		Period:    domain.Period{Month: 7, Year: 2026},
		Status:    domain.StatusPending,
	}

	row, err := store.toRow(job)
	require.NoError(t, err)
	assert.False(t, row.Employee.Valid)
	assert.Empty(t, row.TemplateContent)
	assert.False(t, row.SentAt.Valid)

	got := store.fromRow(row)
	assert.Nil(t, got.Employee)
	assert.Nil(t, got.SentAt)
	assert.Empty(t, got.TemplateContent)
}

func TestMessageLogStore_LegacyRecipientPassthrough(t *testing.T) {
	store := newTestStore(t)

	got := store.fromRow(&messageLogRow{
		ID:        "job-1",
		Recipient: "not-ciphertext",
	})

	// An undecryptable contact degrades to its stored value instead of
	// poisoning the whole listing.
	assert.Equal(t, "not-ciphertext", got.Recipient.FullName)
}
