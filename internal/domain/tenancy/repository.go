package tenancy

import (
	"context"

	"github.com/google/uuid"
)

// TenantRepository provides persistence for tenants
type TenantRepository interface {
	Save(ctx context.Context, tenant *Tenant) error
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByCode(ctx context.Context, code string) (*Tenant, error)
	FindActive(ctx context.Context) ([]*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
}

// ProjectRepository provides persistence for projects
type ProjectRepository interface {
	Save(ctx context.Context, project *Project) error
	FindByID(ctx context.Context, id uuid.UUID) (*Project, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Project, error)
	Update(ctx context.Context, project *Project) error
}
