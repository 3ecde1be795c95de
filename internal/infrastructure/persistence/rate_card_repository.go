package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRateCardRepository implements RateCardRepository using GORM
type GormRateCardRepository struct {
	db *gorm.DB
}

// NewGormRateCardRepository creates a new GormRateCardRepository
func NewGormRateCardRepository(db *gorm.DB) *GormRateCardRepository {
	return &GormRateCardRepository{db: db}
}

// Save inserts a new rate card. At most one card exists per tenant.
func (r *GormRateCardRepository) Save(ctx context.Context, card *billing.RateCard) error {
	model, err := models.RateCardModelFromDomain(card)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByTenant finds the tenant's rate card
func (r *GormRateCardRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*billing.RateCard, error) {
	var model models.RateCardModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Update persists rate card changes under optimistic concurrency
func (r *GormRateCardRepository) Update(ctx context.Context, card *billing.RateCard) error {
	card.IncrementVersion()
	card.UpdatedAt = time.Now()

	model, err := models.RateCardModelFromDomain(card)
	if err != nil {
		card.Version--
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.RateCardModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Updates(map[string]interface{}{
			"included_seats":          model.IncludedSeats,
			"per_seat_price":          model.PerSeatPrice,
			"stage_base_fees":         model.StageBaseFeesJSON,
			"meter_prices":            model.MeterPricesJSON,
			"volume_tiers":            model.VolumeTiersJSON,
			"annual_discount_percent": model.AnnualDiscountPercent,
			"currency":                model.Currency,
			"conversion_rate":         model.ConversionRate,
			"version":                 model.Version,
			"updated_at":              model.UpdatedAt,
		})

	if result.Error != nil {
		card.Version--
		return result.Error
	}
	if result.RowsAffected == 0 {
		card.Version--
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormRateCardRepository implements RateCardRepository
var _ billing.RateCardRepository = (*GormRateCardRepository)(nil)
