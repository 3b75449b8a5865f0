package domain

import "time"

// Job kinds. A payroll record addresses both the employer (recipient)
// and the employee, an invoice only the recipient.
const (
	KindInvoice = "invoice"
	KindPayroll = "payroll"
)

// Job statuses. Success is terminal; failure is only retried by
// re-running harvest + delivery, never by the worker itself.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Portal workflow statuses written back during reconciliation.
const (
	WorkflowPending = "PENDIENTE"
	WorkflowSent    = "ENVIADO"
	WorkflowError   = "ERROR"
)

// Contact is a recipient of a delivery. It is stored encrypted; callers
// of the store always see it in plaintext.
type Contact struct {
	ExternalID  string `json:"id,omitempty"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	LastMessage string `json:"lastMessage,omitempty"`
}

// Period identifies the billing month a job belongs to.
type Period struct {
	Month int
	Year  int
}

// Document carries the billing document fields used for template
// variables and human-readable file names.
type Document struct {
	Series        string
	Separator     string
	Number        int
	Total         float64
	IssueDate     string
	PaymentMethod string
}

// DeliveryJob is the persisted unit of work: one outbound WhatsApp
// delivery of an invoice or payroll document. A single source record
// may fan out into two jobs when a secondary contact is registered, so
// SourceID is not unique.
type DeliveryJob struct {
	ID        string
	SourceID  string
	Kind      string
	Recipient Contact
	Employee  *Contact
	Period    Period
	Document  Document
	FileURL   string

	Status        string
	FailureReason string

	TemplateContentSid string
	TemplateContent    string
	ProviderMessageID  string

	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sent reports whether the job already went through a delivery attempt.
func (j *DeliveryJob) Sent() bool {
	return j.SentAt != nil
}
