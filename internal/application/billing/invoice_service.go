package billing

import (
	"context"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/google/uuid"
)

// InvoiceService exposes read access to generated invoices
type InvoiceService struct {
	invoiceRepo billing.InvoiceRepository
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(invoiceRepo billing.InvoiceRepository) *InvoiceService {
	return &InvoiceService{invoiceRepo: invoiceRepo}
}

// Get returns an invoice by ID
func (s *InvoiceService) Get(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return s.invoiceRepo.FindByID(ctx, id)
}

// GetByPeriod returns the single invoice generated for a billing period
func (s *InvoiceService) GetByPeriod(ctx context.Context, periodID uuid.UUID) (*billing.Invoice, error) {
	return s.invoiceRepo.FindByPeriod(ctx, periodID)
}

// ListByTenant returns the tenant's invoices, most recent period first
func (s *InvoiceService) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error) {
	return s.invoiceRepo.FindByTenant(ctx, tenantID)
}
