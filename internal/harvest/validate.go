package harvest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/portal"
)

// signaturePending is the portal's placeholder for a document that has
// not finished its signing workflow yet.
const signaturePending = "PENDIENTE"

// remesaPaymentMethod marks direct-debit invoices, the only kind sent
// over WhatsApp. Other payment methods are delivered on paper.
const remesaPaymentMethod = "Remesa"

// admitInvoice decides whether an invoice record becomes a delivery
// job. It returns a reason when the record is skipped.
func admitInvoice(rec *portal.InvoiceRecord) (bool, string) {
	if !workflowPending(rec.WhatsappStatus) {
		return false, fmt.Sprintf("workflow status is %q", rec.WhatsappStatus)
	}

	if !validUUID(rec.ID) || !validUUID(rec.UserID) {
		return false, "record or owner id is not a valid uuid"
	}

	if !strings.EqualFold(strings.TrimSpace(rec.PaymentMethod), remesaPaymentMethod) {
		return false, fmt.Sprintf("payment method is %q", rec.PaymentMethod)
	}

	if reason, ok := signedAndSealed(rec.Signature, rec.Seal, rec.QRCode); !ok {
		return false, reason
	}

	return true, ""
}

// admitPayroll decides whether a payroll record becomes a delivery job.
func admitPayroll(rec *portal.PayrollRecord) (bool, string) {
	if !workflowPending(rec.WhatsappStatus) {
		return false, fmt.Sprintf("workflow status is %q", rec.WhatsappStatus)
	}

	if !validUUID(rec.ID) || !validUUID(rec.EmployerID) || !validUUID(rec.EmployeeID) {
		return false, "record, employer or employee id is not a valid uuid"
	}

	if !fullMonthLiquidation(rec.PeriodStart, rec.PeriodEnd) {
		return false, fmt.Sprintf("liquidation %s..%s does not cover a full month", rec.PeriodStart, rec.PeriodEnd)
	}

	if reason, ok := signedAndSealed(rec.Signature, rec.Seal, rec.QRCode); !ok {
		return false, reason
	}

	return true, ""
}

func workflowPending(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), domain.WorkflowPending)
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// signedAndSealed requires the signature, seal and QR code fields to be
// present and past the signing workflow.
func signedAndSealed(signature, seal, qr string) (string, bool) {
	for name, value := range map[string]string{
		"signature": signature,
		"seal":      seal,
		"qr":        qr,
	} {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return fmt.Sprintf("%s is empty", name), false
		}
		if strings.EqualFold(trimmed, signaturePending) {
			return fmt.Sprintf("%s is still pending", name), false
		}
	}
	return "", true
}

// fullMonthLiquidation checks that the liquidation period spans exactly
// one calendar month: day 1 through the last day of that same month.
// Partial-month payrolls (mid-month starts, terminations) are settled
// manually, never by automated delivery.
func fullMonthLiquidation(start, end string) bool {
	startDate, err := parsePortalDate(start)
	if err != nil {
		return false
	}
	endDate, err := parsePortalDate(end)
	if err != nil {
		return false
	}

	if startDate.Day() != 1 {
		return false
	}
	if startDate.Month() != endDate.Month() || startDate.Year() != endDate.Year() {
		return false
	}

	lastDay := time.Date(startDate.Year(), startDate.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	return endDate.Day() == lastDay.Day()
}

// parsePortalDate accepts the portal's two date spellings.
func parsePortalDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// contactPhone validates that a profile carries a usable phone number.
func contactPhone(phone string) (string, bool) {
	trimmed := strings.TrimSpace(phone)
	return trimmed, trimmed != ""
}
