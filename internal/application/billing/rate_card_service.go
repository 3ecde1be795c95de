package billing

import (
	"context"
	"errors"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateCardService manages per-tenant rate cards
type RateCardService struct {
	rateCardRepo billing.RateCardRepository
	periodRepo   billing.BillingPeriodRepository
	tenantRepo   tenancy.TenantRepository
	logger       *zap.Logger
}

// NewRateCardService creates a new RateCardService
func NewRateCardService(
	rateCardRepo billing.RateCardRepository,
	periodRepo billing.BillingPeriodRepository,
	tenantRepo tenancy.TenantRepository,
	logger *zap.Logger,
) *RateCardService {
	return &RateCardService{
		rateCardRepo: rateCardRepo,
		periodRepo:   periodRepo,
		tenantRepo:   tenantRepo,
		logger:       logger,
	}
}

// Upsert validates and stores the tenant's rate card, replacing any
// existing card. The update is rejected while the tenant's current period
// is closing or already closed, so that a card swap can never land in the
// middle of invoicing. Pricing for past periods is unaffected either way:
// invoicing reads the card once, when the closed period is priced.
func (s *RateCardService) Upsert(ctx context.Context, card *billing.RateCard) (*billing.RateCard, error) {
	if err := card.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.tenantRepo.FindByID(ctx, card.TenantID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnknownTenant
		}
		return nil, err
	}

	current, err := s.periodRepo.FindCovering(ctx, card.TenantID, time.Now())
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if current != nil && !current.Status.AcceptsEvents() {
		return nil, shared.ErrInvalidState
	}

	existing, err := s.rateCardRepo.FindByTenant(ctx, card.TenantID)
	if errors.Is(err, shared.ErrNotFound) {
		if err := s.rateCardRepo.Save(ctx, card); err != nil {
			return nil, err
		}
		s.logger.Info("rate card created", zap.String("tenant_id", card.TenantID.String()))
		return card, nil
	} else if err != nil {
		return nil, err
	}

	existing.IncludedSeats = card.IncludedSeats
	existing.PerSeatPrice = card.PerSeatPrice
	existing.StageBaseFees = card.StageBaseFees
	existing.MeterPrices = card.MeterPrices
	existing.VolumeTiers = card.VolumeTiers
	existing.AnnualDiscountPercent = card.AnnualDiscountPercent
	existing.Currency = card.Currency
	existing.ConversionRate = card.ConversionRate
	if err := s.rateCardRepo.Update(ctx, existing); err != nil {
		return nil, err
	}
	s.logger.Info("rate card updated", zap.String("tenant_id", card.TenantID.String()))
	return existing, nil
}

// Get returns the tenant's rate card
func (s *RateCardService) Get(ctx context.Context, tenantID uuid.UUID) (*billing.RateCard, error) {
	card, err := s.rateCardRepo.FindByTenant(ctx, tenantID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrMissingRateCard
	}
	return card, err
}
