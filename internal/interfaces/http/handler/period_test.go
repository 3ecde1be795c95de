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
	"go.uber.org/zap"

	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared/valueobject"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/metering/backend/internal/interfaces/http/dto"
)

type periodFixture struct {
	router    *gin.Engine
	periods   *fakePeriodRepo
	invoices  *fakeInvoiceRepo
	rateCards *fakeRateCardRepo
	tenants   *fakeTenantRepo
	projects  *fakeProjectRepo
}

func newPeriodFixture(t *testing.T) *periodFixture {
	t.Helper()

	f := &periodFixture{
		periods:   newFakePeriodRepo(),
		invoices:  newFakeInvoiceRepo(),
		rateCards: newFakeRateCardRepo(),
		tenants:   newFakeTenantRepo(),
		projects:  newFakeProjectRepo(),
	}
	closer := appbilling.NewPeriodCloseService(
		f.periods, f.invoices, f.rateCards, f.tenants, f.projects,
		nil, zap.NewNop(),
		appbilling.PeriodCloseServiceConfig{QuiescenceWindow: 0, MaxRetries: 3},
	)
	h := NewPeriodHandler(closer)

	f.router = gin.New()
	f.router.POST("/periods/:id/close", h.Close)
	f.router.POST("/tenants/:id/periods/close", h.CloseTenantDue)
	f.router.POST("/periods/close-due", h.CloseDue)
	return f
}

// seedBillableTenant sets up a tenant whose past July period prices out
// at 765: a 750 active-stage base fee plus 15 of query overage.
func (f *periodFixture) seedBillableTenant(t *testing.T) (*tenancy.Tenant, *billing.BillingPeriod) {
	t.Helper()
	ctx := context.Background()

	tenant, err := tenancy.NewTenant("tenant-"+uuid.NewString()[:8], "Acme Construction", "billing@acme.example")
	require.NoError(t, err)
	require.NoError(t, tenant.SetSeatCount(5))
	require.NoError(t, f.tenants.Save(ctx, tenant))

	card, err := billing.NewRateCard(
		tenant.ID,
		5,
		decimal.NewFromInt(75),
		map[tenancy.ProjectStage]decimal.Decimal{
			tenancy.ProjectStageActive: decimal.NewFromInt(750),
		},
		map[billing.Meter]billing.MeterPrice{
			billing.MeterQuery: {Included: 1000, OveragePrice: decimal.RequireFromString("0.10")},
		},
		nil,
		decimal.NewFromInt(15),
		valueobject.USD,
		decimal.NewFromInt(1),
	)
	require.NoError(t, err)
	require.NoError(t, f.rateCards.Save(ctx, card))

	project, err := tenancy.NewProject(tenant.ID, "Harbor Tower")
	require.NoError(t, err)
	require.NoError(t, project.SetStage(tenancy.ProjectStageActive))
	require.NoError(t, f.projects.Save(ctx, project))

	period, err := billing.NewMonthlyPeriod(tenant.ID, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, period.ApplyUsage(project.ID, billing.MeterQuery, 1150))
	require.NoError(t, f.periods.Save(ctx, period))

	return tenant, period
}

func TestPeriodHandler_Close(t *testing.T) {
	t.Run("closes a due period and returns its invoice", func(t *testing.T) {
		f := newPeriodFixture(t)
		tenant, period := f.seedBillableTenant(t)

		req := httptest.NewRequest("POST", "/periods/"+period.ID.String()+"/close", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data InvoiceResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tenant.ID.String(), resp.Data.TenantID)
		assert.Equal(t, period.ID.String(), resp.Data.BillingPeriodID)
		assert.True(t, resp.Data.TotalAmount.Equal(decimal.NewFromInt(765)), "total %s", resp.Data.TotalAmount)
	})

	t.Run("repeating the close returns the same invoice", func(t *testing.T) {
		f := newPeriodFixture(t)
		_, period := f.seedBillableTenant(t)

		path := "/periods/" + period.ID.String() + "/close"

		first := httptest.NewRecorder()
		f.router.ServeHTTP(first, httptest.NewRequest("POST", path, nil))
		require.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		f.router.ServeHTTP(second, httptest.NewRequest("POST", path, nil))
		require.Equal(t, http.StatusOK, second.Code)

		var a, b struct {
			Data InvoiceResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
		assert.Equal(t, a.Data.ID, b.Data.ID)
	})

	t.Run("missing rate card surfaces as 422", func(t *testing.T) {
		f := newPeriodFixture(t)
		_, period := f.seedBillableTenant(t)
		delete(f.rateCards.cards, period.TenantID)

		req := httptest.NewRequest("POST", "/periods/"+period.ID.String()+"/close", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeMissingRateCard)
	})

	t.Run("unknown period is 404", func(t *testing.T) {
		f := newPeriodFixture(t)

		req := httptest.NewRequest("POST", "/periods/"+uuid.NewString()+"/close", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPeriodHandler_CloseTenantDue(t *testing.T) {
	f := newPeriodFixture(t)
	tenant, pastPeriod := f.seedBillableTenant(t)

	// The in-flight period must survive the sweep untouched.
	current, err := billing.NewMonthlyPeriod(tenant.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.periods.Save(context.Background(), current))

	req := httptest.NewRequest("POST", "/tenants/"+tenant.ID.String()+"/periods/close", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []InvoiceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, pastPeriod.ID.String(), resp.Data[0].BillingPeriodID)

	stored, err := f.periods.FindByID(context.Background(), current.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PeriodStatusOpen, stored.Status)
}

func TestPeriodHandler_CloseDue(t *testing.T) {
	f := newPeriodFixture(t)
	f.seedBillableTenant(t)
	_, broken := f.seedBillableTenant(t)
	delete(f.rateCards.cards, broken.TenantID)

	req := httptest.NewRequest("POST", "/periods/close-due", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data appbilling.CloseDueSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Closed)
	assert.Equal(t, 1, resp.Data.Failed)
}
