package tenancy

import (
	"strings"
	"time"

	"github.com/metering/backend/internal/domain/shared"
)

// TenantStatus represents the status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended" // Suspended due to payment issues
	TenantStatusCancelled TenantStatus = "cancelled" // Soft-deleted, kept for the retention window
)

// BillingCycle represents how a tenant is billed
type BillingCycle string

const (
	// BillingCycleMonthly bills at each monthly period close
	BillingCycleMonthly BillingCycle = "monthly"

	// BillingCycleAnnual prepays yearly and earns the annual discount
	BillingCycleAnnual BillingCycle = "annual"
)

// IsValid returns true if the billing cycle is valid
func (c BillingCycle) IsValid() bool {
	return c == BillingCycleMonthly || c == BillingCycleAnnual
}

// Tenant represents an organization whose usage is metered and invoiced.
// It is the aggregate root for tenant-scoped billing configuration.
type Tenant struct {
	shared.BaseAggregateRoot
	Code         string       `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name         string       `gorm:"type:varchar(200);not null"`
	Status       TenantStatus `gorm:"type:varchar(20);not null;default:'active'"`
	Plan         string       `gorm:"type:varchar(50);not null;default:'standard'"`
	BillingEmail string       `gorm:"type:varchar(200);not null"`
	BillingCycle BillingCycle `gorm:"type:varchar(20);not null;default:'monthly'"`
	SeatCount    int64        `gorm:"not null;default:1"`
	CancelledAt  *time.Time   `gorm:"index"` // Start of the retention window
}

// TableName returns the table name for GORM
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates a new active tenant
func NewTenant(code, name, billingEmail string) (*Tenant, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant name cannot be empty")
	}
	if !strings.Contains(billingEmail, "@") {
		return nil, shared.NewDomainError("INVALID_TENANT", "Billing email is not valid")
	}
	return &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Name:              name,
		Status:            TenantStatusActive,
		Plan:              "standard",
		BillingEmail:      billingEmail,
		BillingCycle:      BillingCycleMonthly,
		SeatCount:         1,
	}, nil
}

// IsActive returns true if the tenant may generate usage
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// IsAnnual returns true if the tenant is on annual prepay billing
func (t *Tenant) IsAnnual() bool {
	return t.BillingCycle == BillingCycleAnnual
}

// SetBillingCycle changes the billing cycle
func (t *Tenant) SetBillingCycle(cycle BillingCycle) error {
	if !cycle.IsValid() {
		return shared.NewDomainError("INVALID_TENANT", "Invalid billing cycle")
	}
	t.BillingCycle = cycle
	return nil
}

// SetSeatCount updates the number of seats in use
func (t *Tenant) SetSeatCount(seats int64) error {
	if seats < 0 {
		return shared.NewDomainError("INVALID_TENANT", "Seat count cannot be negative")
	}
	t.SeatCount = seats
	return nil
}

// Cancel soft-deletes the tenant, starting the retention window
func (t *Tenant) Cancel(now time.Time) error {
	if t.Status == TenantStatusCancelled {
		return shared.ErrInvalidState
	}
	t.Status = TenantStatusCancelled
	t.CancelledAt = &now
	return nil
}
