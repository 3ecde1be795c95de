package billing

import (
	"time"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultClockSkewTolerance is how far into the future an event's
// occurred_at may lie before it is rejected as implausible.
const DefaultClockSkewTolerance = 5 * time.Minute

// UsageEvent is an immutable fact describing a single metered action.
// Once accepted it is never updated; corrections require new events.
// The idempotency key is the invariant that prevents double counting:
// two events with the same key have identical, singular effect no matter
// how many times they are delivered.
type UsageEvent struct {
	shared.BaseEntity
	IdempotencyKey string    // Globally unique per source system
	TenantID       uuid.UUID // The tenant this usage belongs to
	ProjectID      uuid.UUID // The project this usage belongs to
	Meter          Meter     // Usage dimension being metered
	Quantity       int64     // Amount of usage; negative only for storage deltas
	OccurredAt     time.Time // When the metered action happened
	SourceType     string    // Origin system (e.g. "whatsapp", "document_pipeline")
	SourceID       string    // ID of the originating message/action (optional)
}

// NewUsageEvent creates a new usage event with validation
func NewUsageEvent(
	idempotencyKey string,
	tenantID uuid.UUID,
	projectID uuid.UUID,
	meter Meter,
	quantity int64,
	occurredAt time.Time,
) (*UsageEvent, error) {
	event := &UsageEvent{
		BaseEntity:     shared.NewBaseEntity(),
		IdempotencyKey: idempotencyKey,
		TenantID:       tenantID,
		ProjectID:      projectID,
		Meter:          meter,
		Quantity:       quantity,
		OccurredAt:     occurredAt,
	}
	if err := event.Validate(time.Now(), DefaultClockSkewTolerance); err != nil {
		return nil, err
	}
	return event, nil
}

// WithSource sets the source information for the usage event
func (e *UsageEvent) WithSource(sourceType, sourceID string) *UsageEvent {
	e.SourceType = sourceType
	e.SourceID = sourceID
	return e
}

// Validate checks the event against the ingestion rules. now and skew
// bound how far into the future occurred_at may lie.
func (e *UsageEvent) Validate(now time.Time, skew time.Duration) error {
	if e.IdempotencyKey == "" {
		return shared.NewDomainError("INVALID_EVENT", "Idempotency key cannot be empty")
	}
	if e.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_EVENT", "Tenant ID cannot be empty")
	}
	if e.ProjectID == uuid.Nil {
		return shared.NewDomainError("INVALID_EVENT", "Project ID cannot be empty")
	}
	if !e.Meter.IsValid() {
		return shared.NewDomainError("INVALID_EVENT", "Invalid meter")
	}
	if e.Quantity < 0 && !e.Meter.AllowsNegativeQuantity() {
		return shared.NewDomainError("INVALID_EVENT", "Quantity cannot be negative for meter "+e.Meter.String())
	}
	if e.OccurredAt.IsZero() {
		return shared.NewDomainError("INVALID_EVENT", "Occurred-at timestamp is required")
	}
	if e.OccurredAt.After(now.Add(skew)) {
		return shared.NewDomainError("INVALID_EVENT", "Occurred-at timestamp is in the future")
	}
	return nil
}
