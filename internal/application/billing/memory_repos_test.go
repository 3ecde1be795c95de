package billing

import (
	"context"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
)

// In-memory repositories backing the service tests. They enforce the same
// contracts as the GORM implementations: the unique idempotency key, the
// one-invoice-per-period rule, and optimistic locking on periods.

type memoryEventRepo struct {
	events map[string]*billing.UsageEvent
}

func newMemoryEventRepo() *memoryEventRepo {
	return &memoryEventRepo{events: make(map[string]*billing.UsageEvent)}
}

func (r *memoryEventRepo) Save(_ context.Context, event *billing.UsageEvent) error {
	if _, ok := r.events[event.IdempotencyKey]; ok {
		return shared.ErrAlreadyExists
	}
	r.events[event.IdempotencyKey] = event
	return nil
}

func (r *memoryEventRepo) FindByIdempotencyKey(_ context.Context, key string) (*billing.UsageEvent, error) {
	event, ok := r.events[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return event, nil
}

func (r *memoryEventRepo) SumByTenantAndMeter(_ context.Context, tenantID uuid.UUID, meter billing.Meter, start, end time.Time) (int64, error) {
	var sum int64
	for _, event := range r.events {
		if event.TenantID == tenantID && event.Meter == meter &&
			!event.OccurredAt.Before(start) && event.OccurredAt.Before(end) {
			sum += event.Quantity
		}
	}
	return sum, nil
}

func (r *memoryEventRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	var deleted int64
	for key, event := range r.events {
		if event.OccurredAt.Before(before) {
			delete(r.events, key)
			deleted++
		}
	}
	return deleted, nil
}

type memoryPeriodRepo struct {
	periods map[uuid.UUID]*billing.BillingPeriod

	// updateConflicts makes the next n Update calls fail with a
	// concurrency conflict, to exercise the retry paths.
	updateConflicts int
}

func newMemoryPeriodRepo() *memoryPeriodRepo {
	return &memoryPeriodRepo{periods: make(map[uuid.UUID]*billing.BillingPeriod)}
}

func (r *memoryPeriodRepo) Save(_ context.Context, period *billing.BillingPeriod) error {
	if _, ok := r.periods[period.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.periods[period.ID] = period
	return nil
}

func (r *memoryPeriodRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.BillingPeriod, error) {
	period, ok := r.periods[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return period, nil
}

func (r *memoryPeriodRepo) FindCovering(_ context.Context, tenantID uuid.UUID, t time.Time) (*billing.BillingPeriod, error) {
	for _, period := range r.periods {
		if period.TenantID == tenantID && period.Covers(t) {
			return period, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryPeriodRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]*billing.BillingPeriod, error) {
	var out []*billing.BillingPeriod
	for _, period := range r.periods {
		if period.TenantID == tenantID {
			out = append(out, period)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) FindDue(_ context.Context, now time.Time) ([]*billing.BillingPeriod, error) {
	var out []*billing.BillingPeriod
	for _, period := range r.periods {
		if period.IsPastEnd(now) && period.Status != billing.PeriodStatusInvoiced {
			out = append(out, period)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) Update(_ context.Context, period *billing.BillingPeriod) error {
	if r.updateConflicts > 0 {
		r.updateConflicts--
		return shared.ErrConcurrencyConflict
	}
	if _, ok := r.periods[period.ID]; !ok {
		return shared.ErrNotFound
	}
	period.IncrementVersion()
	r.periods[period.ID] = period
	return nil
}

type memoryInvoiceRepo struct {
	invoices map[uuid.UUID]*billing.Invoice
	byPeriod map[uuid.UUID]*billing.Invoice
	saves    int
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{
		invoices: make(map[uuid.UUID]*billing.Invoice),
		byPeriod: make(map[uuid.UUID]*billing.Invoice),
	}
}

func (r *memoryInvoiceRepo) Save(_ context.Context, invoice *billing.Invoice) error {
	r.saves++
	if _, ok := r.byPeriod[invoice.BillingPeriodID]; ok {
		return shared.ErrInvoiceAlreadyExists
	}
	r.invoices[invoice.ID] = invoice
	r.byPeriod[invoice.BillingPeriodID] = invoice
	return nil
}

func (r *memoryInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	invoice, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return invoice, nil
}

func (r *memoryInvoiceRepo) FindByPeriod(_ context.Context, billingPeriodID uuid.UUID) (*billing.Invoice, error) {
	invoice, ok := r.byPeriod[billingPeriodID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return invoice, nil
}

func (r *memoryInvoiceRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error) {
	var out []*billing.Invoice
	for _, invoice := range r.invoices {
		if invoice.TenantID == tenantID {
			out = append(out, invoice)
		}
	}
	return out, nil
}

type memoryRateCardRepo struct {
	cards map[uuid.UUID]*billing.RateCard
}

func newMemoryRateCardRepo() *memoryRateCardRepo {
	return &memoryRateCardRepo{cards: make(map[uuid.UUID]*billing.RateCard)}
}

func (r *memoryRateCardRepo) Save(_ context.Context, card *billing.RateCard) error {
	if _, ok := r.cards[card.TenantID]; ok {
		return shared.ErrAlreadyExists
	}
	r.cards[card.TenantID] = card
	return nil
}

func (r *memoryRateCardRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) (*billing.RateCard, error) {
	card, ok := r.cards[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return card, nil
}

func (r *memoryRateCardRepo) Update(_ context.Context, card *billing.RateCard) error {
	if _, ok := r.cards[card.TenantID]; !ok {
		return shared.ErrNotFound
	}
	r.cards[card.TenantID] = card
	return nil
}

type memoryTenantRepo struct {
	tenants map[uuid.UUID]*tenancy.Tenant
}

func newMemoryTenantRepo() *memoryTenantRepo {
	return &memoryTenantRepo{tenants: make(map[uuid.UUID]*tenancy.Tenant)}
}

func (r *memoryTenantRepo) Save(_ context.Context, tenant *tenancy.Tenant) error {
	r.tenants[tenant.ID] = tenant
	return nil
}

func (r *memoryTenantRepo) FindByID(_ context.Context, id uuid.UUID) (*tenancy.Tenant, error) {
	tenant, ok := r.tenants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return tenant, nil
}

func (r *memoryTenantRepo) FindByCode(_ context.Context, code string) (*tenancy.Tenant, error) {
	for _, tenant := range r.tenants {
		if tenant.Code == code {
			return tenant, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryTenantRepo) FindActive(_ context.Context) ([]*tenancy.Tenant, error) {
	var out []*tenancy.Tenant
	for _, tenant := range r.tenants {
		if tenant.IsActive() {
			out = append(out, tenant)
		}
	}
	return out, nil
}

func (r *memoryTenantRepo) Update(_ context.Context, tenant *tenancy.Tenant) error {
	if _, ok := r.tenants[tenant.ID]; !ok {
		return shared.ErrNotFound
	}
	r.tenants[tenant.ID] = tenant
	return nil
}

type memoryProjectRepo struct {
	projects map[uuid.UUID]*tenancy.Project
}

func newMemoryProjectRepo() *memoryProjectRepo {
	return &memoryProjectRepo{projects: make(map[uuid.UUID]*tenancy.Project)}
}

func (r *memoryProjectRepo) Save(_ context.Context, project *tenancy.Project) error {
	r.projects[project.ID] = project
	return nil
}

func (r *memoryProjectRepo) FindByID(_ context.Context, id uuid.UUID) (*tenancy.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return project, nil
}

func (r *memoryProjectRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]*tenancy.Project, error) {
	var out []*tenancy.Project
	for _, project := range r.projects {
		if project.TenantID == tenantID {
			out = append(out, project)
		}
	}
	return out, nil
}

func (r *memoryProjectRepo) Update(_ context.Context, project *tenancy.Project) error {
	if _, ok := r.projects[project.ID]; !ok {
		return shared.ErrNotFound
	}
	r.projects[project.ID] = project
	return nil
}

var (
	_ billing.UsageEventRepository    = (*memoryEventRepo)(nil)
	_ billing.BillingPeriodRepository = (*memoryPeriodRepo)(nil)
	_ billing.InvoiceRepository       = (*memoryInvoiceRepo)(nil)
	_ billing.RateCardRepository      = (*memoryRateCardRepo)(nil)
	_ tenancy.TenantRepository        = (*memoryTenantRepo)(nil)
	_ tenancy.ProjectRepository       = (*memoryProjectRepo)(nil)
)
