package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope_CommitsAsOneUnit(t *testing.T) {
	db := newTestDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	tenantID := uuid.New()
	occurredAt := time.Now().Add(-time.Hour)

	event := newEvent(t, "wamid.tx-commit", tenantID, billing.MeterQuery, 500, occurredAt)

	err := scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		if err := repos.EventRepo().Save(ctx, event); err != nil {
			return err
		}
		period, err := billing.NewMonthlyPeriod(tenantID, occurredAt)
		if err != nil {
			return err
		}
		if err := period.ApplyUsage(event.ProjectID, event.Meter, event.Quantity); err != nil {
			return err
		}
		return repos.PeriodRepo().Save(ctx, period)
	})
	require.NoError(t, err)

	events := NewGormUsageEventRepository(db)
	_, err = events.FindByIdempotencyKey(ctx, "wamid.tx-commit")
	assert.NoError(t, err)

	periods := NewGormBillingPeriodRepository(db)
	period, err := periods.FindCovering(ctx, tenantID, occurredAt)
	require.NoError(t, err)
	assert.Equal(t, int64(500), period.TotalFor(billing.MeterQuery))
}

func TestGormTransactionScope_RollsBackAsOneUnit(t *testing.T) {
	db := newTestDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	tenantID := uuid.New()
	occurredAt := time.Now().Add(-time.Hour)

	boom := errors.New("period update failed")
	err := scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		event := newEvent(t, "wamid.tx-rollback", tenantID, billing.MeterQuery, 500, occurredAt)
		if err := repos.EventRepo().Save(ctx, event); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The event insert must not survive the failed counter update, or the
	// key would block a legitimate retry forever.
	events := NewGormUsageEventRepository(db)
	_, err = events.FindByIdempotencyKey(ctx, "wamid.tx-rollback")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
