package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageEventRepository is the append-only store of accepted usage events.
// Save must fail with shared.ErrAlreadyExists when the idempotency key
// has been recorded before; the unique index is the durable half of the
// double-counting guarantee.
type UsageEventRepository interface {
	Save(ctx context.Context, event *UsageEvent) error
	FindByIdempotencyKey(ctx context.Context, key string) (*UsageEvent, error)

	// SumByTenantAndMeter totals accepted event quantities for a tenant
	// and meter over [start, end). Used to audit counter consistency.
	SumByTenantAndMeter(ctx context.Context, tenantID uuid.UUID, meter Meter, start, end time.Time) (int64, error)

	// DeleteOlderThan prunes events past their retention window
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// BillingPeriodRepository provides persistence for billing periods.
// Update must enforce optimistic concurrency on the aggregate version and
// fail with shared.ErrConcurrencyConflict when the row moved underneath.
type BillingPeriodRepository interface {
	Save(ctx context.Context, period *BillingPeriod) error
	FindByID(ctx context.Context, id uuid.UUID) (*BillingPeriod, error)
	FindCovering(ctx context.Context, tenantID uuid.UUID, t time.Time) (*BillingPeriod, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*BillingPeriod, error)

	// FindDue returns periods whose end has passed and that have not yet
	// been invoiced, across all tenants.
	FindDue(ctx context.Context, now time.Time) ([]*BillingPeriod, error)

	Update(ctx context.Context, period *BillingPeriod) error
}

// InvoiceRepository is the immutable invoice store. Save must fail with
// shared.ErrInvoiceAlreadyExists when the billing period already has an
// invoice; the unique index on billing_period_id enforces the 1:1 rule.
type InvoiceRepository interface {
	Save(ctx context.Context, invoice *Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByPeriod(ctx context.Context, billingPeriodID uuid.UUID) (*Invoice, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Invoice, error)
}

// RateCardRepository provides persistence for rate cards, one active card
// per tenant.
type RateCardRepository interface {
	Save(ctx context.Context, card *RateCard) error
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*RateCard, error)
	Update(ctx context.Context, card *RateCard) error
}
