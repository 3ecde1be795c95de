package handler

import (
	"github.com/gin-gonic/gin"
	appbilling "github.com/metering/backend/internal/application/billing"
)

// PeriodHandler handles billing period close endpoints. Closing is
// idempotent: repeating a close request converges on the same invoice.
type PeriodHandler struct {
	BaseHandler
	closeService *appbilling.PeriodCloseService
}

// NewPeriodHandler creates a new PeriodHandler
func NewPeriodHandler(closeService *appbilling.PeriodCloseService) *PeriodHandler {
	return &PeriodHandler{closeService: closeService}
}

// Close drives one billing period to invoiced and returns the invoice
func (h *PeriodHandler) Close(c *gin.Context) {
	periodID, ok := h.uriID(c)
	if !ok {
		return
	}

	invoice, err := h.closeService.ClosePeriod(c.Request.Context(), periodID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// CloseTenantDue closes all of one tenant's periods whose end has passed
func (h *PeriodHandler) CloseTenantDue(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	invoices, err := h.closeService.CloseTenantDuePeriods(c.Request.Context(), tenantID)
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

// CloseDue sweeps all tenants' due periods, the same entry point the
// scheduler uses
func (h *PeriodHandler) CloseDue(c *gin.Context) {
	summary, err := h.closeService.CloseDuePeriods(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, summary)
}
