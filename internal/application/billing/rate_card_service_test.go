package billing

import (
	"context"
	"testing"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/shared/valueobject"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rateCardFixture struct {
	service   *RateCardService
	rateCards *memoryRateCardRepo
	periods   *memoryPeriodRepo
	tenants   *memoryTenantRepo
}

func newRateCardFixture(t *testing.T) (*rateCardFixture, *tenancy.Tenant) {
	t.Helper()
	f := &rateCardFixture{
		rateCards: newMemoryRateCardRepo(),
		periods:   newMemoryPeriodRepo(),
		tenants:   newMemoryTenantRepo(),
	}
	f.service = NewRateCardService(f.rateCards, f.periods, f.tenants, zap.NewNop())

	tenant, err := tenancy.NewTenant("acme", "Acme Construction", "billing@acme.example")
	require.NoError(t, err)
	require.NoError(t, f.tenants.Save(context.Background(), tenant))
	return f, tenant
}

func simpleCard(t *testing.T, tenantID uuid.UUID, perSeat int64) *billing.RateCard {
	t.Helper()
	card, err := billing.NewRateCard(
		tenantID,
		5,
		decimal.NewFromInt(perSeat),
		nil, nil, nil,
		decimal.Zero,
		valueobject.USD,
		decimal.NewFromInt(1),
	)
	require.NoError(t, err)
	return card
}

func TestRateCardService_Upsert(t *testing.T) {
	f, tenant := newRateCardFixture(t)
	ctx := context.Background()

	created, err := f.service.Upsert(ctx, simpleCard(t, tenant.ID, 75))
	require.NoError(t, err)
	assert.True(t, created.PerSeatPrice.Equal(decimal.NewFromInt(75)))

	// A second upsert replaces the card in place, keeping its identity
	updated, err := f.service.Upsert(ctx, simpleCard(t, tenant.ID, 90))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.PerSeatPrice.Equal(decimal.NewFromInt(90)))

	stored, err := f.rateCards.FindByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, stored.PerSeatPrice.Equal(decimal.NewFromInt(90)))
}

func TestRateCardService_UpsertUnknownTenant(t *testing.T) {
	f, _ := newRateCardFixture(t)

	_, err := f.service.Upsert(context.Background(), simpleCard(t, uuid.New(), 75))
	assert.ErrorIs(t, err, shared.ErrUnknownTenant)
}

func TestRateCardService_UpsertRejectedWhileClosing(t *testing.T) {
	f, tenant := newRateCardFixture(t)
	ctx := context.Background()

	period, err := billing.NewMonthlyPeriod(tenant.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, period.BeginClosing(time.Now()))
	require.NoError(t, f.periods.Save(ctx, period))

	// A card swap must never land in the middle of invoicing
	_, err = f.service.Upsert(ctx, simpleCard(t, tenant.ID, 75))
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestRateCardService_Get(t *testing.T) {
	f, tenant := newRateCardFixture(t)
	ctx := context.Background()

	_, err := f.service.Get(ctx, tenant.ID)
	assert.ErrorIs(t, err, shared.ErrMissingRateCard)

	_, err = f.service.Upsert(ctx, simpleCard(t, tenant.ID, 75))
	require.NoError(t, err)

	card, err := f.service.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, card.TenantID)
}
