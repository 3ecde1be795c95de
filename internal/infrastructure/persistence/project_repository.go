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

// GormProjectRepository implements ProjectRepository using GORM
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a new GormProjectRepository
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db}
}

// Save inserts a new project
func (r *GormProjectRepository) Save(ctx context.Context, project *tenancy.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// FindByID finds a project by its ID
func (r *GormProjectRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Project, error) {
	var project tenancy.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// FindByTenant returns the tenant's projects
func (r *GormProjectRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*tenancy.Project, error) {
	var projects []*tenancy.Project
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// Update persists project changes under optimistic concurrency
func (r *GormProjectRepository) Update(ctx context.Context, project *tenancy.Project) error {
	project.IncrementVersion()
	project.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).
		Model(project).
		Where("id = ? AND version = ?", project.ID, project.Version-1).
		Updates(map[string]interface{}{
			"name":       project.Name,
			"stage":      project.Stage,
			"version":    project.Version,
			"updated_at": project.UpdatedAt,
		})

	if result.Error != nil {
		project.Version--
		return result.Error
	}
	if result.RowsAffected == 0 {
		project.Version--
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormProjectRepository implements ProjectRepository
var _ tenancy.ProjectRepository = (*GormProjectRepository)(nil)
