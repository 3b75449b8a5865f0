package delivery

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/cuongbtq/whatsapp-billing/internal/domain"
)

// Templates lists the approved content SIDs per message family. A
// family with several SIDs gets one picked at random per message.
type Templates struct {
	Invoice         []string
	PayrollUser     []string
	PayrollEmployee []string
}

func pickTemplate(family string, sids []string) (string, error) {
	if len(sids) == 0 {
		return "", fmt.Errorf("no template configured for %s messages: %w", family, domain.ErrNoTemplate)
	}
	return sids[rand.Intn(len(sids))], nil
}

// shortName reduces a Spanish full name to its greeting form: the first
// name plus the first surname. "Ana María Pérez López" with the double
// first name in one token comes back as "Ana Pérez"; shorter names come
// back whole.
func shortName(fullName string) string {
	parts := strings.Fields(fullName)
	switch {
	case len(parts) == 0:
		return ""
	case len(parts) < 3:
		return strings.Join(parts, " ")
	default:
		return parts[0] + " " + parts[2]
	}
}

// invoiceVars fills the invoice template placeholders: greeting name,
// billing period, document reference and total.
func invoiceVars(job *domain.DeliveryJob) map[string]string {
	return map[string]string{
		"1": shortName(job.Recipient.FullName),
		"2": job.Period.Name(),
		"3": documentReference(job.Document),
		"4": fmt.Sprintf("%.2f", job.Document.Total),
	}
}

// payrollUserVars fills the employer-side payroll template: greeting
// name, employee name and billing period.
func payrollUserVars(job *domain.DeliveryJob) map[string]string {
	employeeName := ""
	if job.Employee != nil {
		employeeName = shortName(job.Employee.FullName)
	}
	return map[string]string{
		"1": shortName(job.Recipient.FullName),
		"2": employeeName,
		"3": job.Period.Name(),
	}
}

// payrollEmployeeVars fills the employee-side payroll template.
func payrollEmployeeVars(job *domain.DeliveryJob) map[string]string {
	return map[string]string{
		"1": shortName(job.Employee.FullName),
		"2": job.Period.Name(),
	}
}

// documentReference renders the human-visible invoice number, e.g.
// "FC-118".
func documentReference(doc domain.Document) string {
	if doc.Series == "" && doc.Number == 0 {
		return ""
	}
	return fmt.Sprintf("%s%s%d", doc.Series, doc.Separator, doc.Number)
}

// renderContent produces the plaintext audit copy of what the template
// said, persisted (encrypted) alongside the job.
func renderContent(family string, vars map[string]string) string {
	var b strings.Builder
	b.WriteString(family)
	for i := 1; ; i++ {
		value, ok := vars[fmt.Sprintf("%d", i)]
		if !ok {
			break
		}
		b.WriteString(" | ")
		b.WriteString(value)
	}
	return b.String()
}
