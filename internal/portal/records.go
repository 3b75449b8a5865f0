package portal

import (
	"context"
	"fmt"
	"strconv"
)

// InvoiceRecord is one invoice row from the portal listing.
type InvoiceRecord struct {
	ID             string  `json:"id"`
	UserID         string  `json:"idUsuario"`
	Month          int     `json:"mes"`
	Year           int     `json:"ano"`
	Series         string  `json:"serie"`
	Separator      string  `json:"separador"`
	Number         int     `json:"numero"`
	Total          float64 `json:"total"`
	IssueDate      string  `json:"fechaExpedicion"`
	PaymentMethod  string  `json:"tipoPago"`
	WhatsappStatus string  `json:"whatsappStatus"`
	Signature      string  `json:"firma"`
	Seal           string  `json:"sello"`
	QRCode         string  `json:"qr"`
}

// PayrollRecord is one payroll row from the portal listing.
type PayrollRecord struct {
	ID             string `json:"id"`
	EmployerID     string `json:"idEmpleador"`
	EmployeeID     string `json:"idTrabajador"`
	Month          int    `json:"mes"`
	Year           int    `json:"ano"`
	PeriodStart    string `json:"inicioLiquidacion"`
	PeriodEnd      string `json:"finLiquidacion"`
	WhatsappStatus string `json:"whatsappStatus"`
	Signature      string `json:"firma"`
	Seal           string `json:"sello"`
	QRCode         string `json:"qr"`
}

// UserProfile is the contact profile of the owning user of a record.
// Name2/Phone2 form the optional secondary contact pair that drives
// job fan-out.
type UserProfile struct {
	Name     string `json:"nombre"`
	LastName string `json:"apellidos"`
	Phone    string `json:"telefono1"`
	Name2    string `json:"nombre2"`
	Phone2   string `json:"telefono2"`
}

// EmployeeProfile is the contact profile of a payroll's employee.
type EmployeeProfile struct {
	Name  string `json:"nombre"`
	Phone string `json:"telefono1"`
}

type invoiceListing struct {
	Invoices []InvoiceRecord `json:"facturas"`
}

type payrollListing struct {
	Payrolls []PayrollRecord `json:"nominas"`
}

// ListInvoices lists the portal's invoices for a year/month.
func (s *Session) ListInvoices(ctx context.Context, year, month int) ([]InvoiceRecord, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	var listing invoiceListing
	if err := s.get(ctx, "/cuidofam/api/facturacion/listado", periodQuery(year, month), &listing); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return listing.Invoices, nil
}

// ListPayrolls lists the portal's payrolls for a year/month.
func (s *Session) ListPayrolls(ctx context.Context, year, month int) ([]PayrollRecord, error) {
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}

	var listing payrollListing
	if err := s.get(ctx, "/cuidofam/api/nominas/listado", periodQuery(year, month), &listing); err != nil {
		return nil, fmt.Errorf("failed to list payrolls: %w", err)
	}
	return listing.Payrolls, nil
}

// GetUser fetches the contact profile of a portal user by UUID.
func (s *Session) GetUser(ctx context.Context, userID string) (*UserProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	var profile UserProfile
	if err := s.get(ctx, "/cuidofam/api/usuarios/edit", map[string]string{"uuid": userID}, &profile); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &profile, nil
}

// GetEmployee fetches the contact profile of an employee by UUID.
func (s *Session) GetEmployee(ctx context.Context, employeeID string) (*EmployeeProfile, error) {
	if employeeID == "" {
		return nil, fmt.Errorf("employee id cannot be empty")
	}

	var profile EmployeeProfile
	if err := s.get(ctx, "/cuidofam/api/empleados/edit", map[string]string{"uuid": employeeID}, &profile); err != nil {
		return nil, fmt.Errorf("failed to get employee %s: %w", employeeID, err)
	}
	return &profile, nil
}

// SetInvoiceWhatsappStatus flips an invoice's delivery workflow status.
func (s *Session) SetInvoiceWhatsappStatus(ctx context.Context, invoiceID, status string) error {
	if err := s.post(ctx, "/cuidofam/api/facturacion/whatsapp-status", map[string]string{
		"uuid":   invoiceID,
		"status": status,
	}, nil); err != nil {
		return fmt.Errorf("failed to update invoice %s status: %w", invoiceID, err)
	}
	return nil
}

// SetPayrollWhatsappStatus flips a payroll's delivery workflow status.
func (s *Session) SetPayrollWhatsappStatus(ctx context.Context, payrollID, status string) error {
	if err := s.post(ctx, "/cuidofam/api/nominas/whatsapp-status", map[string]string{
		"uuid":   payrollID,
		"status": status,
	}, nil); err != nil {
		return fmt.Errorf("failed to update payroll %s status: %w", payrollID, err)
	}
	return nil
}

func validatePeriod(year, month int) error {
	if year < 2000 || month < 1 || month > 12 {
		return fmt.Errorf("invalid period %d-%d", year, month)
	}
	return nil
}

func periodQuery(year, month int) map[string]string {
	return map[string]string{
		"year":  strconv.Itoa(year),
		"month": strconv.Itoa(month),
	}
}
