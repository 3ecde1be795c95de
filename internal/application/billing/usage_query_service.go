package billing

import (
	"context"
	"errors"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// UsageSummary is a read model over one billing period's counters
type UsageSummary struct {
	PeriodID    uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      billing.PeriodStatus
	Counters    billing.PeriodCounters
	Totals      billing.MeterCounts
}

// UsageQueryService exposes read access to per-period usage counters
type UsageQueryService struct {
	periodRepo billing.BillingPeriodRepository
}

// NewUsageQueryService creates a new UsageQueryService
func NewUsageQueryService(periodRepo billing.BillingPeriodRepository) *UsageQueryService {
	return &UsageQueryService{periodRepo: periodRepo}
}

// CurrentUsage returns the tenant's usage for the period covering now.
// A tenant that has not sent any events this period has no period row yet;
// that reads back as an empty summary for the calendar month, not an error.
func (s *UsageQueryService) CurrentUsage(ctx context.Context, tenantID uuid.UUID) (*UsageSummary, error) {
	return s.UsageAt(ctx, tenantID, time.Now())
}

// UsageAt returns the tenant's usage for the period covering the instant
func (s *UsageQueryService) UsageAt(ctx context.Context, tenantID uuid.UUID, at time.Time) (*UsageSummary, error) {
	period, err := s.periodRepo.FindCovering(ctx, tenantID, at)
	if errors.Is(err, shared.ErrNotFound) {
		empty, err := billing.NewMonthlyPeriod(tenantID, at)
		if err != nil {
			return nil, err
		}
		return summarize(empty), nil
	} else if err != nil {
		return nil, err
	}
	return summarize(period), nil
}

// PeriodUsage returns the usage summary for a specific period
func (s *UsageQueryService) PeriodUsage(ctx context.Context, periodID uuid.UUID) (*UsageSummary, error) {
	period, err := s.periodRepo.FindByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return summarize(period), nil
}

// ListPeriods returns the tenant's billing periods, most recent first
func (s *UsageQueryService) ListPeriods(ctx context.Context, tenantID uuid.UUID) ([]*billing.BillingPeriod, error) {
	return s.periodRepo.FindByTenant(ctx, tenantID)
}

func summarize(period *billing.BillingPeriod) *UsageSummary {
	return &UsageSummary{
		PeriodID:    period.ID,
		PeriodStart: period.PeriodStart,
		PeriodEnd:   period.PeriodEnd,
		Status:      period.Status,
		Counters:    period.Counters.Clone(),
		Totals:      period.Counters.Totals(),
	}
}
