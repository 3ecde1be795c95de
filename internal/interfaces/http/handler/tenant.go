package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	apptenancy "github.com/metering/backend/internal/application/tenancy"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/metering/backend/internal/interfaces/http/middleware"
)

// TenantHandler handles tenant and project endpoints
type TenantHandler struct {
	BaseHandler
	tenantService *apptenancy.TenantService
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenantService *apptenancy.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// CreateTenantRequest registers a new tenant account
type CreateTenantRequest struct {
	Code         string `json:"code" binding:"required,min=1,max=50"`
	Name         string `json:"name" binding:"required,min=1,max=200"`
	BillingEmail string `json:"billing_email" binding:"required,email,max=200"`
	BillingCycle string `json:"billing_cycle" binding:"omitempty,oneof=monthly annual"`
	SeatCount    int64  `json:"seat_count" binding:"omitempty,min=1"`
}

// UpdateSeatCountRequest changes the tenant's licensed seats
type UpdateSeatCountRequest struct {
	SeatCount int64 `json:"seat_count" binding:"required,min=1"`
}

// CreateProjectRequest adds a project under a tenant
type CreateProjectRequest struct {
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// SetProjectStageRequest moves a project to a new lifecycle stage
type SetProjectStageRequest struct {
	Stage string `json:"stage" binding:"required,oneof=planning active finishing handover archived"`
}

// TenantResponse is the wire form of a tenant
type TenantResponse struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	BillingEmail string    `json:"billing_email"`
	BillingCycle string    `json:"billing_cycle"`
	SeatCount    int64     `json:"seat_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProjectResponse is the wire form of a project
type ProjectResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Create registers a new tenant
func (h *TenantHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	cycle := tenancy.BillingCycleMonthly
	if req.BillingCycle != "" {
		cycle = tenancy.BillingCycle(req.BillingCycle)
	}
	seatCount := req.SeatCount
	if seatCount == 0 {
		seatCount = 1
	}

	tenant, err := h.tenantService.CreateTenant(
		c.Request.Context(), req.Code, req.Name, req.BillingEmail, cycle, seatCount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toTenantResponse(tenant))
}

// Get returns one tenant by its ID
func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := h.uriID(c)
	if !ok {
		return
	}

	tenant, err := h.tenantService.GetTenant(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

// List returns all active tenants
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.tenantService.ListActiveTenants(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]TenantResponse, 0, len(tenants))
	for _, tenant := range tenants {
		resp = append(resp, toTenantResponse(tenant))
	}
	h.Success(c, resp)
}

// UpdateSeats changes the tenant's licensed seat count. The change takes
// effect at the next period close.
func (h *TenantHandler) UpdateSeats(c *gin.Context) {
	id, ok := h.uriID(c)
	if !ok {
		return
	}

	var req UpdateSeatCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	tenant, err := h.tenantService.UpdateSeatCount(c.Request.Context(), id, req.SeatCount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(tenant))
}

// CreateProject adds a project under the tenant
func (h *TenantHandler) CreateProject(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	project, err := h.tenantService.CreateProject(c.Request.Context(), tenantID, req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toProjectResponse(project))
}

// ListProjects returns the tenant's projects
func (h *TenantHandler) ListProjects(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	projects, err := h.tenantService.ListProjects(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, project := range projects {
		resp = append(resp, toProjectResponse(project))
	}
	h.Success(c, resp)
}

// SetProjectStage moves a project to a new lifecycle stage
func (h *TenantHandler) SetProjectStage(c *gin.Context) {
	projectID, ok := h.uriID(c)
	if !ok {
		return
	}

	var req SetProjectStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	project, err := h.tenantService.SetProjectStage(
		c.Request.Context(), projectID, tenancy.ProjectStage(req.Stage))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toProjectResponse(project))
}

func toTenantResponse(tenant *tenancy.Tenant) TenantResponse {
	return TenantResponse{
		ID:           tenant.ID.String(),
		Code:         tenant.Code,
		Name:         tenant.Name,
		Status:       string(tenant.Status),
		BillingEmail: tenant.BillingEmail,
		BillingCycle: string(tenant.BillingCycle),
		SeatCount:    tenant.SeatCount,
		CreatedAt:    tenant.CreatedAt,
		UpdatedAt:    tenant.UpdatedAt,
	}
}

func toProjectResponse(project *tenancy.Project) ProjectResponse {
	return ProjectResponse{
		ID:        project.ID.String(),
		TenantID:  project.TenantID.String(),
		Name:      project.Name,
		Stage:     string(project.Stage),
		CreatedAt: project.CreatedAt,
		UpdatedAt: project.UpdatedAt,
	}
}
