package billing

import (
	"context"
	"errors"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CloseMetrics records invoicing outcomes for observability
type CloseMetrics interface {
	RecordInvoice(ctx context.Context, currency string, total decimal.Decimal)
}

// PeriodCloseServiceConfig contains configuration for the closer
type PeriodCloseServiceConfig struct {
	// QuiescenceWindow is how long the closer waits after raising the
	// closing barrier so that in-flight ingestions drain before counters
	// are frozen. Closing is a barrier, not an instant.
	QuiescenceWindow time.Duration

	// MaxRetries bounds optimistic-concurrency retries per transition
	MaxRetries int
}

// DefaultPeriodCloseServiceConfig returns default configuration
func DefaultPeriodCloseServiceConfig() PeriodCloseServiceConfig {
	return PeriodCloseServiceConfig{
		QuiescenceWindow: 2 * time.Second,
		MaxRetries:       3,
	}
}

// PeriodCloseService drives the billing period state machine through
// open -> closing -> closed -> invoiced and emits exactly one invoice per
// period. Every step is idempotent, so the closer tolerates being invoked
// early, late, repeatedly, or resumed after a crash.
type PeriodCloseService struct {
	periodRepo   billing.BillingPeriodRepository
	invoiceRepo  billing.InvoiceRepository
	rateCardRepo billing.RateCardRepository
	tenantRepo   tenancy.TenantRepository
	projectRepo  tenancy.ProjectRepository
	metrics      CloseMetrics
	logger       *zap.Logger
	config       PeriodCloseServiceConfig
}

// NewPeriodCloseService creates a new PeriodCloseService. metrics may be nil.
func NewPeriodCloseService(
	periodRepo billing.BillingPeriodRepository,
	invoiceRepo billing.InvoiceRepository,
	rateCardRepo billing.RateCardRepository,
	tenantRepo tenancy.TenantRepository,
	projectRepo tenancy.ProjectRepository,
	metrics CloseMetrics,
	logger *zap.Logger,
	config PeriodCloseServiceConfig,
) *PeriodCloseService {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultPeriodCloseServiceConfig().MaxRetries
	}
	return &PeriodCloseService{
		periodRepo:   periodRepo,
		invoiceRepo:  invoiceRepo,
		rateCardRepo: rateCardRepo,
		tenantRepo:   tenantRepo,
		projectRepo:  projectRepo,
		metrics:      metrics,
		logger:       logger,
		config:       config,
	}
}

// ClosePeriod runs the period to the invoiced state and returns its
// invoice. Called on an already-invoiced period it returns the existing
// invoice unchanged.
func (s *PeriodCloseService) ClosePeriod(ctx context.Context, periodID uuid.UUID) (*billing.Invoice, error) {
	period, err := s.periodRepo.FindByID(ctx, periodID)
	if err != nil {
		return nil, err
	}

	for {
		switch period.Status {
		case billing.PeriodStatusOpen:
			period, err = s.transition(ctx, period, func(p *billing.BillingPeriod) error {
				return p.BeginClosing(time.Now())
			})
			if err != nil {
				return nil, err
			}

		case billing.PeriodStatusClosing:
			// Drain in-flight ingestions that passed the status check
			// before the barrier went up.
			if err := s.waitQuiescence(ctx); err != nil {
				return nil, err
			}
			period, err = s.transition(ctx, period, func(p *billing.BillingPeriod) error {
				return p.MarkClosed(time.Now())
			})
			if err != nil {
				return nil, err
			}

		case billing.PeriodStatusClosed:
			return s.invoice(ctx, period)

		case billing.PeriodStatusInvoiced:
			return s.invoiceRepo.FindByPeriod(ctx, period.ID)

		default:
			return nil, shared.ErrInvalidState
		}
	}
}

// invoice prices the frozen counters and persists the period's single
// invoice. Safe to re-run after a crash between the database write and
// the acknowledgment: ComputeCharge is deterministic and the unique index
// on billing_period_id converts the second write into a read.
func (s *PeriodCloseService) invoice(ctx context.Context, period *billing.BillingPeriod) (*billing.Invoice, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, period.TenantID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrUnknownTenant
	} else if err != nil {
		return nil, err
	}

	card, err := s.rateCardRepo.FindByTenant(ctx, period.TenantID)
	if errors.Is(err, shared.ErrNotFound) {
		// Fail loudly rather than silently invoicing zero.
		s.logger.Error("period close failed: tenant has no rate card",
			zap.String("tenant_id", period.TenantID.String()),
			zap.String("period_id", period.ID.String()))
		return nil, shared.ErrMissingRateCard
	} else if err != nil {
		return nil, err
	}

	projects, err := s.projectRepo.FindByTenant(ctx, period.TenantID)
	if err != nil {
		return nil, err
	}

	charge, err := billing.ComputeCharge(billing.ChargeInput{
		Period:    period,
		SeatCount: tenant.SeatCount,
		Projects:  projects,
		Annual:    tenant.IsAnnual(),
		RateCard:  card,
	})
	if err != nil {
		return nil, err
	}

	inv, err := billing.NewInvoice(period, charge, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		if errors.Is(err, shared.ErrInvoiceAlreadyExists) {
			// Idempotent re-entry after a crash: return the invoice that
			// the earlier run persisted.
			inv, err = s.invoiceRepo.FindByPeriod(ctx, period.ID)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	if _, err := s.transition(ctx, period, func(p *billing.BillingPeriod) error {
		if p.Status == billing.PeriodStatusInvoiced {
			return nil
		}
		return p.MarkInvoiced()
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordInvoice(ctx, string(inv.Total.Currency()), inv.Total.Amount())
	}
	s.logger.Info("invoice generated",
		zap.String("tenant_id", inv.TenantID.String()),
		zap.String("period_id", inv.BillingPeriodID.String()),
		zap.String("total", inv.Total.String()))
	return inv, nil
}

// CloseDueSummary reports the outcome of one sweep over due periods
type CloseDueSummary struct {
	Closed int `json:"closed"`
	Failed int `json:"failed"`
}

// CloseDuePeriods closes every period across all tenants whose end has
// passed. One tenant's misconfiguration never blocks the others.
func (s *PeriodCloseService) CloseDuePeriods(ctx context.Context) (CloseDueSummary, error) {
	periods, err := s.periodRepo.FindDue(ctx, time.Now())
	if err != nil {
		return CloseDueSummary{}, err
	}

	var summary CloseDueSummary
	for _, period := range periods {
		if _, err := s.ClosePeriod(ctx, period.ID); err != nil {
			summary.Failed++
			s.logger.Error("failed to close billing period",
				zap.String("tenant_id", period.TenantID.String()),
				zap.String("period_id", period.ID.String()),
				zap.Error(err))
			continue
		}
		summary.Closed++
	}
	return summary, nil
}

// CloseTenantDuePeriods closes the tenant's periods whose end has passed.
// Returns the invoices generated (or re-fetched) in period order.
func (s *PeriodCloseService) CloseTenantDuePeriods(ctx context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error) {
	periods, err := s.periodRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var invoices []*billing.Invoice
	for _, period := range periods {
		if !period.IsPastEnd(now) {
			continue
		}
		inv, err := s.ClosePeriod(ctx, period.ID)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// transition applies fn to the period and persists it under optimistic
// concurrency, re-reading on conflict. fn must be idempotent against a
// re-read since another worker may have advanced the period already.
func (s *PeriodCloseService) transition(
	ctx context.Context,
	period *billing.BillingPeriod,
	fn func(*billing.BillingPeriod) error,
) (*billing.BillingPeriod, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		if err := fn(period); err != nil {
			if errors.Is(err, shared.ErrInvalidState) {
				// Another worker already advanced the state machine;
				// forward-only transitions make that benign.
				return period, nil
			}
			return nil, err
		}
		if err := s.periodRepo.Update(ctx, period); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				lastErr = err
				period, err = s.periodRepo.FindByID(ctx, period.ID)
				if err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}
		return period, nil
	}
	return nil, lastErr
}

// waitQuiescence blocks for the configured window or until ctx is done
func (s *PeriodCloseService) waitQuiescence(ctx context.Context) error {
	if s.config.QuiescenceWindow <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.config.QuiescenceWindow):
		return nil
	}
}
