package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTenantRepository implements TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// Save inserts a new tenant
func (r *GormTenantRepository) Save(ctx context.Context, tenant *tenancy.Tenant) error {
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Tenant, error) {
	var tenant tenancy.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByCode finds a tenant by its unique code
func (r *GormTenantRepository) FindByCode(ctx context.Context, code string) (*tenancy.Tenant, error) {
	var tenant tenancy.Tenant
	if err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindActive returns all active tenants
func (r *GormTenantRepository) FindActive(ctx context.Context) ([]*tenancy.Tenant, error) {
	var tenants []*tenancy.Tenant
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(tenancy.TenantStatusActive)).
		Order("code ASC").
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// Update persists tenant changes under optimistic concurrency
func (r *GormTenantRepository) Update(ctx context.Context, tenant *tenancy.Tenant) error {
	tenant.IncrementVersion()
	tenant.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).
		Model(tenant).
		Where("id = ? AND version = ?", tenant.ID, tenant.Version-1).
		Updates(map[string]interface{}{
			"name":          tenant.Name,
			"status":        tenant.Status,
			"plan":          tenant.Plan,
			"billing_email": tenant.BillingEmail,
			"billing_cycle": tenant.BillingCycle,
			"seat_count":    tenant.SeatCount,
			"cancelled_at":  tenant.CancelledAt,
			"version":       tenant.Version,
			"updated_at":    tenant.UpdatedAt,
		})

	if result.Error != nil {
		tenant.Version--
		return result.Error
	}
	if result.RowsAffected == 0 {
		tenant.Version--
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormTenantRepository implements TenantRepository
var _ tenancy.TenantRepository = (*GormTenantRepository)(nil)
