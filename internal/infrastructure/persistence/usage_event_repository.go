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

// GormUsageEventRepository implements UsageEventRepository using GORM
type GormUsageEventRepository struct {
	db *gorm.DB
}

// NewGormUsageEventRepository creates a new GormUsageEventRepository
func NewGormUsageEventRepository(db *gorm.DB) *GormUsageEventRepository {
	return &GormUsageEventRepository{db: db}
}

// Save inserts an accepted usage event. The unique index on
// idempotency_key turns a replayed key into shared.ErrAlreadyExists.
func (r *GormUsageEventRepository) Save(ctx context.Context, event *billing.UsageEvent) error {
	model := models.UsageEventModelFromDomain(event)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByIdempotencyKey finds an event by its idempotency key
func (r *GormUsageEventRepository) FindByIdempotencyKey(ctx context.Context, key string) (*billing.UsageEvent, error) {
	var model models.UsageEventModel
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// SumByTenantAndMeter totals accepted quantities for a tenant and meter
// over [start, end)
func (r *GormUsageEventRepository) SumByTenantAndMeter(ctx context.Context, tenantID uuid.UUID, meter billing.Meter, start, end time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.UsageEventModel{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("tenant_id = ? AND meter = ? AND occurred_at >= ? AND occurred_at < ?",
			tenantID, string(meter), start, end).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteOlderThan prunes events that occurred before the cutoff
func (r *GormUsageEventRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("occurred_at < ?", before).
		Delete(&models.UsageEventModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormUsageEventRepository implements UsageEventRepository
var _ billing.UsageEventRepository = (*GormUsageEventRepository)(nil)
