package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
)

// InvoiceHandler handles invoice read endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *appbilling.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *appbilling.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// InvoiceResponse is the wire form of an invoice
type InvoiceResponse struct {
	ID                    string             `json:"id"`
	TenantID              string             `json:"tenant_id"`
	BillingPeriodID       string             `json:"billing_period_id"`
	PeriodStart           time.Time          `json:"period_start"`
	PeriodEnd             time.Time          `json:"period_end"`
	LineItems             []billing.LineItem `json:"line_items"`
	Subtotal              decimal.Decimal    `json:"subtotal"`
	VolumeDiscountPercent decimal.Decimal    `json:"volume_discount_percent"`
	AnnualDiscountPercent decimal.Decimal    `json:"annual_discount_percent"`
	TotalAmount           decimal.Decimal    `json:"total_amount"`
	Currency              string             `json:"currency"`
	GeneratedAt           time.Time          `json:"generated_at"`
}

// Get returns one invoice by its ID
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.uriID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// GetByPeriod returns the invoice of one billing period
func (h *InvoiceHandler) GetByPeriod(c *gin.Context) {
	periodID, ok := h.uriID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetByPeriod(c.Request.Context(), periodID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// ListByTenant returns a tenant's invoices, newest period first
func (h *InvoiceHandler) ListByTenant(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	invoices, err := h.invoiceService.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]InvoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		resp = append(resp, toInvoiceResponse(invoice))
	}
	h.Success(c, resp)
}

func toInvoiceResponse(invoice *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:                    invoice.ID.String(),
		TenantID:              invoice.TenantID.String(),
		BillingPeriodID:       invoice.BillingPeriodID.String(),
		PeriodStart:           invoice.PeriodStart,
		PeriodEnd:             invoice.PeriodEnd,
		LineItems:             invoice.LineItems,
		Subtotal:              invoice.Subtotal,
		VolumeDiscountPercent: invoice.VolumeDiscountPercent,
		AnnualDiscountPercent: invoice.AnnualDiscountPercent,
		TotalAmount:           invoice.Total.Amount(),
		Currency:              string(invoice.Total.Currency()),
		GeneratedAt:           invoice.GeneratedAt,
	}
}
