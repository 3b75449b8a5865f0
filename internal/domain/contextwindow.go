package domain

import "time"

// Context window statuses. The status column is a hint; whether a
// window is usable is always decided from ExpiresAt against the clock.
const (
	WindowActive  = "active"
	WindowExpired = "expired"
)

// Message types recorded on a context window.
const (
	WindowTypeInvoice         = "invoice"
	WindowTypePayroll         = "payroll"
	WindowTypePayrollEmployee = "payroll_employee"
	WindowTypeInitialization  = "initialization"
)

// ContextWindow tracks WhatsApp's 24-hour session for one phone number.
// At most one row exists per normalized number; every template send
// upserts it with a fresh expiry.
type ContextWindow struct {
	PhoneNumber   string
	InitializedAt time.Time
	ExpiresAt     time.Time
	TemplateSid   string
	MessageType   string
	Status        string
}

// Active reports whether the window is open at the given instant.
// The persisted status alone is never trusted.
func (w *ContextWindow) Active(now time.Time) bool {
	return w.Status == WindowActive && now.Before(w.ExpiresAt)
}
