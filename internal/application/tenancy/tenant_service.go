package tenancy

import (
	"context"
	"errors"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantService manages tenant accounts and their projects
type TenantService struct {
	tenantRepo  tenancy.TenantRepository
	projectRepo tenancy.ProjectRepository
	logger      *zap.Logger
}

// NewTenantService creates a new TenantService
func NewTenantService(
	tenantRepo tenancy.TenantRepository,
	projectRepo tenancy.ProjectRepository,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		tenantRepo:  tenantRepo,
		projectRepo: projectRepo,
		logger:      logger,
	}
}

// CreateTenant registers a new tenant account
func (s *TenantService) CreateTenant(ctx context.Context, code, name, billingEmail string, cycle tenancy.BillingCycle, seatCount int64) (*tenancy.Tenant, error) {
	if _, err := s.tenantRepo.FindByCode(ctx, code); err == nil {
		return nil, shared.ErrAlreadyExists
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	tenant, err := tenancy.NewTenant(code, name, billingEmail)
	if err != nil {
		return nil, err
	}
	if err := tenant.SetBillingCycle(cycle); err != nil {
		return nil, err
	}
	if err := tenant.SetSeatCount(seatCount); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, tenant); err != nil {
		return nil, err
	}
	s.logger.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("code", tenant.Code))
	return tenant, nil
}

// GetTenant returns a tenant by ID
func (s *TenantService) GetTenant(ctx context.Context, id uuid.UUID) (*tenancy.Tenant, error) {
	return s.tenantRepo.FindByID(ctx, id)
}

// ListActiveTenants returns all active tenants
func (s *TenantService) ListActiveTenants(ctx context.Context) ([]*tenancy.Tenant, error) {
	return s.tenantRepo.FindActive(ctx)
}

// UpdateSeatCount changes the tenant's licensed seat count. The new count
// takes effect when the current period is invoiced; past invoices keep the
// count they were priced with.
func (s *TenantService) UpdateSeatCount(ctx context.Context, id uuid.UUID, seats int64) (*tenancy.Tenant, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenant.SetSeatCount(seats); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// CreateProject adds a project under the tenant
func (s *TenantService) CreateProject(ctx context.Context, tenantID uuid.UUID, name string) (*tenancy.Project, error) {
	if _, err := s.tenantRepo.FindByID(ctx, tenantID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnknownTenant
		}
		return nil, err
	}
	project, err := tenancy.NewProject(tenantID, name)
	if err != nil {
		return nil, err
	}
	if err := s.projectRepo.Save(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("project_id", project.ID.String()))
	return project, nil
}

// SetProjectStage moves a project through its lifecycle
func (s *TenantService) SetProjectStage(ctx context.Context, projectID uuid.UUID, stage tenancy.ProjectStage) (*tenancy.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := project.SetStage(stage); err != nil {
		return nil, err
	}
	if err := s.projectRepo.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// ListProjects returns the tenant's projects
func (s *TenantService) ListProjects(ctx context.Context, tenantID uuid.UUID) ([]*tenancy.Project, error) {
	return s.projectRepo.FindByTenant(ctx, tenantID)
}
