package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/tenancy"
)

// In-memory repositories for exercising handlers end to end through the
// real application services. They mirror the uniqueness and locking
// contracts of the GORM implementations.

type fakeEventRepo struct {
	events map[string]*billing.UsageEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*billing.UsageEvent)}
}

func (r *fakeEventRepo) Save(_ context.Context, event *billing.UsageEvent) error {
	if _, ok := r.events[event.IdempotencyKey]; ok {
		return shared.ErrAlreadyExists
	}
	r.events[event.IdempotencyKey] = event
	return nil
}

func (r *fakeEventRepo) FindByIdempotencyKey(_ context.Context, key string) (*billing.UsageEvent, error) {
	event, ok := r.events[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return event, nil
}

func (r *fakeEventRepo) SumByTenantAndMeter(_ context.Context, tenantID uuid.UUID, meter billing.Meter, start, end time.Time) (int64, error) {
	var sum int64
	for _, event := range r.events {
		if event.TenantID == tenantID && event.Meter == meter &&
			!event.OccurredAt.Before(start) && event.OccurredAt.Before(end) {
			sum += event.Quantity
		}
	}
	return sum, nil
}

func (r *fakeEventRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	var deleted int64
	for key, event := range r.events {
		if event.OccurredAt.Before(before) {
			delete(r.events, key)
			deleted++
		}
	}
	return deleted, nil
}

type fakePeriodRepo struct {
	periods map[uuid.UUID]*billing.BillingPeriod
}

func newFakePeriodRepo() *fakePeriodRepo {
	return &fakePeriodRepo{periods: make(map[uuid.UUID]*billing.BillingPeriod)}
}

func (r *fakePeriodRepo) Save(_ context.Context, period *billing.BillingPeriod) error {
	if _, ok := r.periods[period.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.periods[period.ID] = period
	return nil
}

func (r *fakePeriodRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.BillingPeriod, error) {
	period, ok := r.periods[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return period, nil
}

func (r *fakePeriodRepo) FindCovering(_ context.Context, tenantID uuid.UUID, t time.Time) (*billing.BillingPeriod, error) {
	for _, period := range r.periods {
		if period.TenantID == tenantID && period.Covers(t) {
			return period, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakePeriodRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]*billing.BillingPeriod, error) {
	var out []*billing.BillingPeriod
	for _, period := range r.periods {
		if period.TenantID == tenantID {
			out = append(out, period)
		}
	}
	return out, nil
}

func (r *fakePeriodRepo) FindDue(_ context.Context, now time.Time) ([]*billing.BillingPeriod, error) {
	var out []*billing.BillingPeriod
	for _, period := range r.periods {
		if period.IsPastEnd(now) && period.Status != billing.PeriodStatusInvoiced {
			out = append(out, period)
		}
	}
	return out, nil
}

func (r *fakePeriodRepo) Update(_ context.Context, period *billing.BillingPeriod) error {
	if _, ok := r.periods[period.ID]; !ok {
		return shared.ErrNotFound
	}
	period.IncrementVersion()
	r.periods[period.ID] = period
	return nil
}

type fakeInvoiceRepo struct {
	invoices map[uuid.UUID]*billing.Invoice
	byPeriod map[uuid.UUID]*billing.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{
		invoices: make(map[uuid.UUID]*billing.Invoice),
		byPeriod: make(map[uuid.UUID]*billing.Invoice),
	}
}

func (r *fakeInvoiceRepo) Save(_ context.Context, invoice *billing.Invoice) error {
	if _, ok := r.byPeriod[invoice.BillingPeriodID]; ok {
		return shared.ErrInvoiceAlreadyExists
	}
	r.invoices[invoice.ID] = invoice
	r.byPeriod[invoice.BillingPeriodID] = invoice
	return nil
}

func (r *fakeInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	invoice, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return invoice, nil
}

func (r *fakeInvoiceRepo) FindByPeriod(_ context.Context, billingPeriodID uuid.UUID) (*billing.Invoice, error) {
	invoice, ok := r.byPeriod[billingPeriodID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return invoice, nil
}

func (r *fakeInvoiceRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error) {
	var out []*billing.Invoice
	for _, invoice := range r.invoices {
		if invoice.TenantID == tenantID {
			out = append(out, invoice)
		}
	}
	return out, nil
}

type fakeRateCardRepo struct {
	cards map[uuid.UUID]*billing.RateCard
}

func newFakeRateCardRepo() *fakeRateCardRepo {
	return &fakeRateCardRepo{cards: make(map[uuid.UUID]*billing.RateCard)}
}

func (r *fakeRateCardRepo) Save(_ context.Context, card *billing.RateCard) error {
	if _, ok := r.cards[card.TenantID]; ok {
		return shared.ErrAlreadyExists
	}
	r.cards[card.TenantID] = card
	return nil
}

func (r *fakeRateCardRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) (*billing.RateCard, error) {
	card, ok := r.cards[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return card, nil
}

func (r *fakeRateCardRepo) Update(_ context.Context, card *billing.RateCard) error {
	if _, ok := r.cards[card.TenantID]; !ok {
		return shared.ErrNotFound
	}
	r.cards[card.TenantID] = card
	return nil
}

type fakeTenantRepo struct {
	tenants map[uuid.UUID]*tenancy.Tenant
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{tenants: make(map[uuid.UUID]*tenancy.Tenant)}
}

func (r *fakeTenantRepo) Save(_ context.Context, tenant *tenancy.Tenant) error {
	r.tenants[tenant.ID] = tenant
	return nil
}

func (r *fakeTenantRepo) FindByID(_ context.Context, id uuid.UUID) (*tenancy.Tenant, error) {
	tenant, ok := r.tenants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return tenant, nil
}

func (r *fakeTenantRepo) FindByCode(_ context.Context, code string) (*tenancy.Tenant, error) {
	for _, tenant := range r.tenants {
		if tenant.Code == code {
			return tenant, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTenantRepo) FindActive(_ context.Context) ([]*tenancy.Tenant, error) {
	var out []*tenancy.Tenant
	for _, tenant := range r.tenants {
		if tenant.IsActive() {
			out = append(out, tenant)
		}
	}
	return out, nil
}

func (r *fakeTenantRepo) Update(_ context.Context, tenant *tenancy.Tenant) error {
	if _, ok := r.tenants[tenant.ID]; !ok {
		return shared.ErrNotFound
	}
	r.tenants[tenant.ID] = tenant
	return nil
}

type fakeProjectRepo struct {
	projects map[uuid.UUID]*tenancy.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[uuid.UUID]*tenancy.Project)}
}

func (r *fakeProjectRepo) Save(_ context.Context, project *tenancy.Project) error {
	r.projects[project.ID] = project
	return nil
}

func (r *fakeProjectRepo) FindByID(_ context.Context, id uuid.UUID) (*tenancy.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return project, nil
}

func (r *fakeProjectRepo) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]*tenancy.Project, error) {
	var out []*tenancy.Project
	for _, project := range r.projects {
		if project.TenantID == tenantID {
			out = append(out, project)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) Update(_ context.Context, project *tenancy.Project) error {
	if _, ok := r.projects[project.ID]; !ok {
		return shared.ErrNotFound
	}
	r.projects[project.ID] = project
	return nil
}

var (
	_ billing.UsageEventRepository    = (*fakeEventRepo)(nil)
	_ billing.BillingPeriodRepository = (*fakePeriodRepo)(nil)
	_ billing.InvoiceRepository       = (*fakeInvoiceRepo)(nil)
	_ billing.RateCardRepository      = (*fakeRateCardRepo)(nil)
	_ tenancy.TenantRepository        = (*fakeTenantRepo)(nil)
	_ tenancy.ProjectRepository       = (*fakeProjectRepo)(nil)
)
