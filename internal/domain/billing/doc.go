// Package billing provides domain models for usage metering and tiered
// invoicing in a multi-tenant SaaS application.
//
// This package implements the metering and billing bounded context:
//   - Recording usage events (AI queries, document uploads, photo
//     analyses, storage deltas) exactly once under at-least-once delivery
//   - Accumulating per-(project, meter) counters in billing periods
//   - Pricing closed periods against a tenant's rate card with volume
//     tier and annual prepay discounts
//   - Emitting exactly one immutable invoice per closed period
//
// Key Aggregates:
//   - BillingPeriod: Forward-only state machine (open, closing, closed,
//     invoiced) holding the period's usage counters
//   - RateCard: Strongly-typed pricing configuration per tenant
//
// Entities:
//   - UsageEvent: Immutable record of a single metered action, deduplicated
//     by idempotency key
//   - Invoice: Immutable priced record of one closed period
//
// ComputeCharge is a pure function of (period, seats, projects, rate
// card); determinism is what makes the closer's crash recovery safe.
//
// The billing domain integrates with:
//   - Tenancy domain: For tenant billing configuration and project stages
//   - Upstream integrations: As sources of usage events (out of scope)
package billing
