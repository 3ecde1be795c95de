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

// GormBillingPeriodRepository implements BillingPeriodRepository using GORM
type GormBillingPeriodRepository struct {
	db *gorm.DB
}

// NewGormBillingPeriodRepository creates a new GormBillingPeriodRepository
func NewGormBillingPeriodRepository(db *gorm.DB) *GormBillingPeriodRepository {
	return &GormBillingPeriodRepository{db: db}
}

// Save inserts a new billing period. The unique index on (tenant_id,
// period_start) dedupes concurrent lazy creation: the loser gets
// shared.ErrAlreadyExists and re-reads the winner's row.
func (r *GormBillingPeriodRepository) Save(ctx context.Context, period *billing.BillingPeriod) error {
	model, err := models.BillingPeriodModelFromDomain(period)
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

// FindByID finds a billing period by its ID
func (r *GormBillingPeriodRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.BillingPeriod, error) {
	var model models.BillingPeriodModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindCovering finds the tenant's period whose half-open interval contains t
func (r *GormBillingPeriodRepository) FindCovering(ctx context.Context, tenantID uuid.UUID, t time.Time) (*billing.BillingPeriod, error) {
	var model models.BillingPeriodModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period_start <= ? AND period_end > ?", tenantID, t, t).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByTenant returns the tenant's billing periods, most recent first
func (r *GormBillingPeriodRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*billing.BillingPeriod, error) {
	var rows []models.BillingPeriodModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("period_start DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPeriods(rows)
}

// FindDue returns periods past their end that have not been invoiced yet
func (r *GormBillingPeriodRepository) FindDue(ctx context.Context, now time.Time) ([]*billing.BillingPeriod, error) {
	var rows []models.BillingPeriodModel
	if err := r.db.WithContext(ctx).
		Where("period_end <= ? AND status <> ?", now, string(billing.PeriodStatusInvoiced)).
		Order("period_end ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPeriods(rows)
}

// Update persists the period under optimistic concurrency. The version
// check catches both concurrent counter increments and concurrent status
// transitions; the caller re-reads and retries on conflict.
func (r *GormBillingPeriodRepository) Update(ctx context.Context, period *billing.BillingPeriod) error {
	period.IncrementVersion()
	period.UpdatedAt = time.Now()

	model, err := models.BillingPeriodModelFromDomain(period)
	if err != nil {
		period.Version--
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.BillingPeriodModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Updates(map[string]interface{}{
			"status":     model.Status,
			"counters":   model.CountersJSON,
			"closing_at": model.ClosingAt,
			"closed_at":  model.ClosedAt,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})

	if result.Error != nil {
		period.Version--
		return result.Error
	}
	if result.RowsAffected == 0 {
		period.Version--
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func toDomainPeriods(rows []models.BillingPeriodModel) ([]*billing.BillingPeriod, error) {
	periods := make([]*billing.BillingPeriod, 0, len(rows))
	for i := range rows {
		period, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, nil
}

// Ensure GormBillingPeriodRepository implements BillingPeriodRepository
var _ billing.BillingPeriodRepository = (*GormBillingPeriodRepository)(nil)
