package billing

import (
	"time"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// PeriodStatus represents the lifecycle state of a billing period.
// Transitions only move forward: open -> closing -> closed -> invoiced.
type PeriodStatus string

const (
	// PeriodStatusOpen accepts usage events
	PeriodStatusOpen PeriodStatus = "open"

	// PeriodStatusClosing is the barrier state: new events are rejected
	// while in-flight ingestions drain during the quiescence window
	PeriodStatusClosing PeriodStatus = "closing"

	// PeriodStatusClosed has frozen counters awaiting invoicing
	PeriodStatusClosed PeriodStatus = "closed"

	// PeriodStatusInvoiced is terminal: an invoice exists for the period
	PeriodStatusInvoiced PeriodStatus = "invoiced"
)

// String returns the string representation of PeriodStatus
func (s PeriodStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s PeriodStatus) IsValid() bool {
	switch s {
	case PeriodStatusOpen, PeriodStatusClosing, PeriodStatusClosed, PeriodStatusInvoiced:
		return true
	}
	return false
}

// rank orders statuses along the forward-only lifecycle
func (s PeriodStatus) rank() int {
	switch s {
	case PeriodStatusOpen:
		return 0
	case PeriodStatusClosing:
		return 1
	case PeriodStatusClosed:
		return 2
	case PeriodStatusInvoiced:
		return 3
	}
	return -1
}

// CanTransitionTo returns true if next is the immediate successor state
func (s PeriodStatus) CanTransitionTo(next PeriodStatus) bool {
	return s.IsValid() && next.IsValid() && next.rank() == s.rank()+1
}

// AcceptsEvents returns true while usage events may still be applied
func (s PeriodStatus) AcceptsEvents() bool {
	return s == PeriodStatusOpen
}

// MeterCounts holds cumulative quantities per meter
type MeterCounts map[Meter]int64

// Clone returns a deep copy of the counts
func (c MeterCounts) Clone() MeterCounts {
	out := make(MeterCounts, len(c))
	for m, q := range c {
		out[m] = q
	}
	return out
}

// PeriodCounters holds per-project meter counts for a billing period
type PeriodCounters map[uuid.UUID]MeterCounts

// Clone returns a deep copy of the counters
func (c PeriodCounters) Clone() PeriodCounters {
	out := make(PeriodCounters, len(c))
	for p, counts := range c {
		out[p] = counts.Clone()
	}
	return out
}

// Totals sums the counters across all projects
func (c PeriodCounters) Totals() MeterCounts {
	totals := MeterCounts{}
	for _, counts := range c {
		for meter, qty := range counts {
			totals[meter] += qty
		}
	}
	return totals
}

// BillingPeriod accumulates usage for a tenant over a half-open interval
// [PeriodStart, PeriodEnd). Periods are contiguous and non-overlapping per
// tenant, created lazily on the first event of a new interval.
type BillingPeriod struct {
	shared.TenantAggregateRoot
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      PeriodStatus
	Counters    PeriodCounters
	ClosingAt   *time.Time // when the closing barrier was raised
	ClosedAt    *time.Time // when counters were frozen
}

// NewBillingPeriod creates an open billing period for the given interval
func NewBillingPeriod(tenantID uuid.UUID, periodStart, periodEnd time.Time) (*BillingPeriod, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !periodEnd.After(periodStart) {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Period end must be after period start")
	}
	return &BillingPeriod{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		PeriodStart:         periodStart,
		PeriodEnd:           periodEnd,
		Status:              PeriodStatusOpen,
		Counters:            make(PeriodCounters),
	}, nil
}

// NewMonthlyPeriod creates an open billing period for the calendar month
// containing t, in UTC.
func NewMonthlyPeriod(tenantID uuid.UUID, t time.Time) (*BillingPeriod, error) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return NewBillingPeriod(tenantID, start, end)
}

// Covers returns true if t falls inside the half-open interval [start, end)
func (p *BillingPeriod) Covers(t time.Time) bool {
	return !t.Before(p.PeriodStart) && t.Before(p.PeriodEnd)
}

// ApplyUsage adds quantity to the counter for (projectID, meter).
// It fails with PERIOD_CLOSED once the period has entered closing; the
// status check and the increment must be persisted as one atomic unit by
// the caller (optimistic locking on the aggregate version).
func (p *BillingPeriod) ApplyUsage(projectID uuid.UUID, meter Meter, quantity int64) error {
	if !p.Status.AcceptsEvents() {
		return shared.ErrPeriodClosed
	}
	if !meter.IsValid() {
		return shared.NewDomainError("INVALID_EVENT", "Invalid meter")
	}
	if p.Counters == nil {
		p.Counters = make(PeriodCounters)
	}
	counts, ok := p.Counters[projectID]
	if !ok {
		counts = make(MeterCounts)
		p.Counters[projectID] = counts
	}
	counts[meter] += quantity
	return nil
}

// UsageFor returns the cumulative quantity for (projectID, meter)
func (p *BillingPeriod) UsageFor(projectID uuid.UUID, meter Meter) int64 {
	return p.Counters[projectID][meter]
}

// TotalFor returns the cumulative quantity for a meter across all projects
func (p *BillingPeriod) TotalFor(meter Meter) int64 {
	var total int64
	for _, counts := range p.Counters {
		total += counts[meter]
	}
	return total
}

// ProjectIDs returns the projects that recorded usage in this period
func (p *BillingPeriod) ProjectIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Counters))
	for id := range p.Counters {
		ids = append(ids, id)
	}
	return ids
}

// BeginClosing raises the closing barrier. Ingestion rejects events for
// this period from here on; in-flight calls drain during the quiescence
// window before counters are read.
func (p *BillingPeriod) BeginClosing(now time.Time) error {
	if !p.Status.CanTransitionTo(PeriodStatusClosing) {
		return shared.ErrInvalidState
	}
	p.Status = PeriodStatusClosing
	p.ClosingAt = &now
	return nil
}

// MarkClosed freezes the counters. No further mutation is permitted.
func (p *BillingPeriod) MarkClosed(now time.Time) error {
	if !p.Status.CanTransitionTo(PeriodStatusClosed) {
		return shared.ErrInvalidState
	}
	p.Status = PeriodStatusClosed
	p.ClosedAt = &now
	return nil
}

// MarkInvoiced records that the period's single invoice has been emitted
func (p *BillingPeriod) MarkInvoiced() error {
	if !p.Status.CanTransitionTo(PeriodStatusInvoiced) {
		return shared.ErrInvalidState
	}
	p.Status = PeriodStatusInvoiced
	return nil
}

// IsPastEnd returns true once now has reached or passed the period end
func (p *BillingPeriod) IsPastEnd(now time.Time) bool {
	return !now.Before(p.PeriodEnd)
}
