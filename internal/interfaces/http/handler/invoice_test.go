package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared/valueobject"
)

type invoiceFixture struct {
	router   *gin.Engine
	invoices *fakeInvoiceRepo
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()

	f := &invoiceFixture{invoices: newFakeInvoiceRepo()}
	h := NewInvoiceHandler(appbilling.NewInvoiceService(f.invoices))

	f.router = gin.New()
	f.router.GET("/invoices/:id", h.Get)
	f.router.GET("/periods/:id/invoice", h.GetByPeriod)
	f.router.GET("/tenants/:id/invoices", h.ListByTenant)
	return f
}

func (f *invoiceFixture) seedInvoice(t *testing.T, tenantID uuid.UUID) *billing.Invoice {
	t.Helper()

	period, err := billing.NewMonthlyPeriod(tenantID, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	total, err := valueobject.NewMoney(decimal.NewFromInt(750), valueobject.USD)
	require.NoError(t, err)
	charge := &billing.Charge{
		LineItems: []billing.LineItem{
			{
				Kind:        billing.LineItemProjectBase,
				Description: "Active project base fee",
				Quantity:    1,
				UnitPrice:   decimal.NewFromInt(750),
				Amount:      decimal.NewFromInt(750),
			},
		},
		Subtotal:              decimal.NewFromInt(750),
		VolumeDiscountPercent: decimal.Zero,
		AnnualDiscountPercent: decimal.Zero,
		Total:                 total,
	}
	invoice, err := billing.NewInvoice(period, charge, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.invoices.Save(context.Background(), invoice))
	return invoice
}

func TestInvoiceHandler_Get(t *testing.T) {
	f := newInvoiceFixture(t)
	invoice := f.seedInvoice(t, uuid.New())

	t.Run("returns the invoice", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/invoices/"+invoice.ID.String(), nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data InvoiceResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, invoice.ID.String(), resp.Data.ID)
		assert.True(t, resp.Data.TotalAmount.Equal(decimal.NewFromInt(750)))
		assert.Equal(t, "USD", resp.Data.Currency)
		require.Len(t, resp.Data.LineItems, 1)
		assert.Equal(t, billing.LineItemProjectBase, resp.Data.LineItems[0].Kind)
	})

	t.Run("unknown invoice is 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/invoices/"+uuid.NewString(), nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-uuid ID is 400", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/invoices/INV-2026-07", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInvoiceHandler_GetByPeriod(t *testing.T) {
	f := newInvoiceFixture(t)
	invoice := f.seedInvoice(t, uuid.New())

	t.Run("finds the period's invoice", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/periods/"+invoice.BillingPeriodID.String()+"/invoice", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data InvoiceResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, invoice.ID.String(), resp.Data.ID)
	})

	t.Run("period without an invoice is 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/periods/"+uuid.NewString()+"/invoice", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestInvoiceHandler_ListByTenant(t *testing.T) {
	f := newInvoiceFixture(t)
	tenantID := uuid.New()
	f.seedInvoice(t, tenantID)
	f.seedInvoice(t, uuid.New())

	req := httptest.NewRequest("GET", "/tenants/"+tenantID.String()+"/invoices", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []InvoiceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, tenantID.String(), resp.Data[0].TenantID)
}
