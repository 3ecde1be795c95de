package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/metering/backend/internal/interfaces/http/dto"
)

type rateCardFixture struct {
	router    *gin.Engine
	rateCards *fakeRateCardRepo
	tenants   *fakeTenantRepo
	periods   *fakePeriodRepo
}

func newRateCardFixture(t *testing.T) (*rateCardFixture, *tenancy.Tenant) {
	t.Helper()

	f := &rateCardFixture{
		rateCards: newFakeRateCardRepo(),
		tenants:   newFakeTenantRepo(),
		periods:   newFakePeriodRepo(),
	}
	h := NewRateCardHandler(appbilling.NewRateCardService(
		f.rateCards, f.periods, f.tenants, zap.NewNop()))

	f.router = gin.New()
	f.router.PUT("/tenants/:id/rate-card", h.Upsert)
	f.router.GET("/tenants/:id/rate-card", h.Get)

	tenant, err := tenancy.NewTenant("acme", "Acme Construction", "billing@acme.example")
	require.NoError(t, err)
	require.NoError(t, f.tenants.Save(context.Background(), tenant))
	return f, tenant
}

const upsertBody = `{
	"included_seats": 5,
	"per_seat_price": 75,
	"stage_base_fees": {"active": 750, "handover": 250},
	"meter_prices": {"QUERY": {"included": 1000, "overage_price": 0.10}},
	"volume_tiers": [{"threshold": 3000, "discount_percent": 5}],
	"annual_discount_percent": 15,
	"currency": "USD",
	"conversion_rate": 1
}`

func (f *rateCardFixture) put(t *testing.T, tenantID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("PUT", "/tenants/"+tenantID+"/rate-card", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRateCardHandler_Upsert(t *testing.T) {
	t.Run("creates the tenant's card", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)

		w := f.put(t, tenant.ID.String(), upsertBody)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data RateCardResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tenant.ID.String(), resp.Data.TenantID)
		assert.Equal(t, int64(5), resp.Data.IncludedSeats)
		assert.True(t, resp.Data.PerSeatPrice.Equal(decimal.NewFromInt(75)))
		assert.True(t, resp.Data.StageBaseFees["active"].Equal(decimal.NewFromInt(750)))
		assert.Equal(t, int64(1000), resp.Data.MeterPrices["QUERY"].Included)
		require.Len(t, resp.Data.VolumeTiers, 1)
		assert.Equal(t, "USD", resp.Data.Currency)
	})

	t.Run("replaces an existing card", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)
		require.Equal(t, http.StatusOK, f.put(t, tenant.ID.String(), upsertBody).Code)

		updated := strings.Replace(upsertBody, `"per_seat_price": 75`, `"per_seat_price": 90`, 1)
		w := f.put(t, tenant.ID.String(), updated)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data RateCardResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Data.PerSeatPrice.Equal(decimal.NewFromInt(90)))
	})

	t.Run("unknown tenant is 404", func(t *testing.T) {
		f, _ := newRateCardFixture(t)

		w := f.put(t, uuid.NewString(), upsertBody)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeUnknownTenant)
	})

	t.Run("rejected while the current period is closing", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)

		period, err := billing.NewMonthlyPeriod(tenant.ID, time.Now())
		require.NoError(t, err)
		require.NoError(t, period.BeginClosing(time.Now()))
		require.NoError(t, f.periods.Save(context.Background(), period))

		w := f.put(t, tenant.ID.String(), upsertBody)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeInvalidState)
	})

	t.Run("unknown stage key is rejected", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)

		body := strings.Replace(upsertBody, `"active"`, `"demolition"`, 1)
		w := f.put(t, tenant.ID.String(), body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown meter key is rejected", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)

		body := strings.Replace(upsertBody, `"QUERY"`, `"TELEPATHY"`, 1)
		w := f.put(t, tenant.ID.String(), body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing currency fails binding", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)

		body := strings.Replace(upsertBody, `"currency": "USD",`, ``, 1)
		w := f.put(t, tenant.ID.String(), body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRateCardHandler_Get(t *testing.T) {
	t.Run("tenant without a card is 422", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)

		req := httptest.NewRequest("GET", "/tenants/"+tenant.ID.String()+"/rate-card", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeMissingRateCard)
	})

	t.Run("returns the stored card", func(t *testing.T) {
		f, tenant := newRateCardFixture(t)
		require.Equal(t, http.StatusOK, f.put(t, tenant.ID.String(), upsertBody).Code)

		req := httptest.NewRequest("GET", "/tenants/"+tenant.ID.String()+"/rate-card", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data RateCardResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Data.AnnualDiscountPercent.Equal(decimal.NewFromInt(15)))
	})
}
