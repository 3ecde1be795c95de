package tenancy

import (
	"strings"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ProjectStage represents the lifecycle stage of a project. The stage
// determines the project's base fee on the tenant's rate card.
type ProjectStage string

const (
	ProjectStagePlanning  ProjectStage = "planning"
	ProjectStageActive    ProjectStage = "active"
	ProjectStageFinishing ProjectStage = "finishing"
	ProjectStageHandover  ProjectStage = "handover"
	ProjectStageArchived  ProjectStage = "archived"
)

// String returns the string representation of ProjectStage
func (s ProjectStage) String() string {
	return string(s)
}

// IsValid returns true if the stage is valid
func (s ProjectStage) IsValid() bool {
	switch s {
	case ProjectStagePlanning, ProjectStageActive, ProjectStageFinishing,
		ProjectStageHandover, ProjectStageArchived:
		return true
	}
	return false
}

// IsBillable returns true for stages that incur a base fee. Archived
// projects no longer bill.
func (s ProjectStage) IsBillable() bool {
	return s.IsValid() && s != ProjectStageArchived
}

// AllProjectStages returns all valid project stages
func AllProjectStages() []ProjectStage {
	return []ProjectStage{
		ProjectStagePlanning,
		ProjectStageActive,
		ProjectStageFinishing,
		ProjectStageHandover,
		ProjectStageArchived,
	}
}

// ParseProjectStage parses a string into a ProjectStage
func ParseProjectStage(s string) (ProjectStage, error) {
	stage := ProjectStage(s)
	if !stage.IsValid() {
		return "", shared.NewDomainError("INVALID_PROJECT", "Invalid project stage: "+s)
	}
	return stage, nil
}

// Project represents a unit of work owned by a tenant. The id is
// immutable; the stage moves as the project progresses.
type Project struct {
	shared.TenantAggregateRoot
	Name  string       `gorm:"type:varchar(200);not null"`
	Stage ProjectStage `gorm:"type:varchar(20);not null;default:'planning'"`
}

// TableName returns the table name for GORM
func (Project) TableName() string {
	return "projects"
}

// NewProject creates a new project in the planning stage
func NewProject(tenantID uuid.UUID, name string) (*Project, error) {
	name = strings.TrimSpace(name)
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROJECT", "Tenant ID cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_PROJECT", "Project name cannot be empty")
	}
	return &Project{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		Stage:               ProjectStagePlanning,
	}, nil
}

// SetStage moves the project to a new stage
func (p *Project) SetStage(stage ProjectStage) error {
	if !stage.IsValid() {
		return shared.NewDomainError("INVALID_PROJECT", "Invalid project stage")
	}
	p.Stage = stage
	return nil
}
