package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/interfaces/http/dto"
	"github.com/metering/backend/internal/interfaces/http/middleware"
)

// UsageHandler handles usage ingestion and usage query endpoints
type UsageHandler struct {
	BaseHandler
	ingestService *appbilling.IngestService
	queryService  *appbilling.UsageQueryService
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(
	ingestService *appbilling.IngestService,
	queryService *appbilling.UsageQueryService,
) *UsageHandler {
	return &UsageHandler{
		ingestService: ingestService,
		queryService:  queryService,
	}
}

// IngestUsageRequest represents a single usage event submission
type IngestUsageRequest struct {
	IdempotencyKey string    `json:"idempotency_key" binding:"required,min=1,max=200"`
	TenantID       string    `json:"tenant_id" binding:"required,uuid"`
	ProjectID      string    `json:"project_id" binding:"required,uuid"`
	Meter          string    `json:"meter" binding:"required"`
	Quantity       int64     `json:"quantity"`
	OccurredAt     time.Time `json:"occurred_at" binding:"required"`
	SourceType     string    `json:"source_type" binding:"max=100"`
	SourceID       string    `json:"source_id" binding:"max=200"`
}

// IngestUsageResponse reports the outcome of one ingestion attempt.
// Duplicates are reported as a success: the event is counted, just not
// twice.
type IngestUsageResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	PeriodID string `json:"period_id,omitempty"`
}

// UsageSummaryResponse is the wire form of a period usage summary
type UsageSummaryResponse struct {
	PeriodID    string                      `json:"period_id"`
	PeriodStart time.Time                   `json:"period_start"`
	PeriodEnd   time.Time                   `json:"period_end"`
	Status      string                      `json:"status"`
	Projects    map[string]map[string]int64 `json:"projects"`
	Totals      map[string]int64            `json:"totals"`
}

// Ingest accepts one usage event and applies it exactly once
func (h *UsageHandler) Ingest(c *gin.Context) {
	var req IngestUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	meter, err := billing.ParseMeter(req.Meter)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
		return
	}

	tenantID := uuid.MustParse(req.TenantID)
	projectID := uuid.MustParse(req.ProjectID)

	// Validation happens inside the ingest service so that invalid events
	// come back as a rejected result rather than a transport error.
	event := &billing.UsageEvent{
		BaseEntity:     shared.NewBaseEntity(),
		IdempotencyKey: req.IdempotencyKey,
		TenantID:       tenantID,
		ProjectID:      projectID,
		Meter:          meter,
		Quantity:       req.Quantity,
		OccurredAt:     req.OccurredAt,
	}
	if req.SourceType != "" || req.SourceID != "" {
		event.WithSource(req.SourceType, req.SourceID)
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), event)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := IngestUsageResponse{
		Status: string(result.Status),
		Reason: result.Reason,
	}
	if result.PeriodID != uuid.Nil {
		resp.PeriodID = result.PeriodID.String()
	}

	switch result.Status {
	case appbilling.IngestApplied:
		h.Created(c, resp)
	case appbilling.IngestDuplicate:
		h.Success(c, resp)
	default:
		code := rejectionCode(result.Reason)
		h.Error(c, dto.GetHTTPStatus(code), code, "Usage event rejected: "+result.Reason)
	}
}

// rejectionCode maps an ingest rejection reason to an error code
func rejectionCode(reason string) string {
	if reason == appbilling.ReasonPeriodClosed {
		return dto.ErrCodePeriodClosed
	}
	return dto.ErrCodeValidation
}

// GetTenantUsage returns the tenant's counters for the period covering
// now, or for the instant given in the optional "at" query parameter
// (RFC 3339).
func (h *UsageHandler) GetTenantUsage(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	var summary *appbilling.UsageSummary
	var err error
	if raw := c.Query("at"); raw != "" {
		at, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			h.BadRequest(c, "Invalid 'at' timestamp, expected RFC 3339")
			return
		}
		summary, err = h.queryService.UsageAt(c.Request.Context(), tenantID, at)
	} else {
		summary, err = h.queryService.CurrentUsage(c.Request.Context(), tenantID)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUsageSummaryResponse(summary))
}

// GetPeriodUsage returns the counters of one billing period by its ID
func (h *UsageHandler) GetPeriodUsage(c *gin.Context) {
	periodID, ok := h.uriID(c)
	if !ok {
		return
	}

	summary, err := h.queryService.PeriodUsage(c.Request.Context(), periodID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUsageSummaryResponse(summary))
}

// ListTenantPeriods lists a tenant's billing periods, newest first
func (h *UsageHandler) ListTenantPeriods(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	periods, err := h.queryService.ListPeriods(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]UsageSummaryResponse, 0, len(periods))
	for _, p := range periods {
		resp = append(resp, UsageSummaryResponse{
			PeriodID:    p.ID.String(),
			PeriodStart: p.PeriodStart,
			PeriodEnd:   p.PeriodEnd,
			Status:      string(p.Status),
			Projects:    countersToWire(p.Counters),
			Totals:      totalsToWire(p.Counters.Totals()),
		})
	}
	h.Success(c, resp)
}

// uriID binds and parses the :id path parameter
func (h *BaseHandler) uriID(c *gin.Context) (uuid.UUID, bool) {
	var req struct {
		ID string `uri:"id" binding:"required,uuid"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid ID")
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}

func toUsageSummaryResponse(s *appbilling.UsageSummary) UsageSummaryResponse {
	return UsageSummaryResponse{
		PeriodID:    s.PeriodID.String(),
		PeriodStart: s.PeriodStart,
		PeriodEnd:   s.PeriodEnd,
		Status:      string(s.Status),
		Projects:    countersToWire(s.Counters),
		Totals:      totalsToWire(s.Totals),
	}
}

func countersToWire(counters billing.PeriodCounters) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(counters))
	for projectID, counts := range counters {
		out[projectID.String()] = totalsToWire(counts)
	}
	return out
}

func totalsToWire(counts billing.MeterCounts) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for meter, n := range counts {
		out[meter.String()] = n
	}
	return out
}
