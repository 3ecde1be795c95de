package models

import (
	"encoding/json"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared/valueobject"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageEventModel persists accepted usage events. The unique index on
// idempotency_key is the durable half of the double-counting guarantee:
// a second insert with the same key fails no matter which instance races.
type UsageEventModel struct {
	BaseModel
	IdempotencyKey string    `gorm:"type:varchar(200);not null;uniqueIndex"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index:idx_usage_events_tenant_time"`
	ProjectID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Meter          string    `gorm:"type:varchar(30);not null"`
	Quantity       int64     `gorm:"not null"`
	OccurredAt     time.Time `gorm:"not null;index:idx_usage_events_tenant_time"`
	SourceType     string    `gorm:"type:varchar(50)"`
	SourceID       string    `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (UsageEventModel) TableName() string {
	return "usage_events"
}

// ToDomain converts the model to a domain usage event
func (m *UsageEventModel) ToDomain() *billing.UsageEvent {
	return &billing.UsageEvent{
		BaseEntity:     m.BaseModel.ToDomain(),
		IdempotencyKey: m.IdempotencyKey,
		TenantID:       m.TenantID,
		ProjectID:      m.ProjectID,
		Meter:          billing.Meter(m.Meter),
		Quantity:       m.Quantity,
		OccurredAt:     m.OccurredAt,
		SourceType:     m.SourceType,
		SourceID:       m.SourceID,
	}
}

// UsageEventModelFromDomain converts a domain usage event to its model
func UsageEventModelFromDomain(e *billing.UsageEvent) *UsageEventModel {
	m := &UsageEventModel{
		IdempotencyKey: e.IdempotencyKey,
		TenantID:       e.TenantID,
		ProjectID:      e.ProjectID,
		Meter:          string(e.Meter),
		Quantity:       e.Quantity,
		OccurredAt:     e.OccurredAt,
		SourceType:     e.SourceType,
		SourceID:       e.SourceID,
	}
	m.FromDomainBaseEntity(e.BaseEntity)
	return m
}

// BillingPeriodModel persists billing periods with their per-project
// counters as a JSON document. The unique index on (tenant_id,
// period_start) dedupes concurrent lazy creation of the same period.
type BillingPeriodModel struct {
	AggregateModel
	TenantID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_billing_periods_tenant_start"`
	PeriodStart  time.Time `gorm:"not null;uniqueIndex:idx_billing_periods_tenant_start"`
	PeriodEnd    time.Time `gorm:"not null;index"`
	Status       string    `gorm:"type:varchar(20);not null;default:'open';index"`
	CountersJSON string    `gorm:"column:counters;type:jsonb;not null;default:'{}'"`
	ClosingAt    *time.Time
	ClosedAt     *time.Time
}

// TableName returns the table name for GORM
func (BillingPeriodModel) TableName() string {
	return "billing_periods"
}

// ToDomain converts the model to a domain billing period
func (m *BillingPeriodModel) ToDomain() (*billing.BillingPeriod, error) {
	counters := make(billing.PeriodCounters)
	if m.CountersJSON != "" && m.CountersJSON != "{}" {
		raw := make(map[string]map[string]int64)
		if err := json.Unmarshal([]byte(m.CountersJSON), &raw); err != nil {
			return nil, err
		}
		for projectStr, counts := range raw {
			projectID, err := uuid.Parse(projectStr)
			if err != nil {
				return nil, err
			}
			meterCounts := make(billing.MeterCounts, len(counts))
			for meterStr, qty := range counts {
				meterCounts[billing.Meter(meterStr)] = qty
			}
			counters[projectID] = meterCounts
		}
	}

	period := &billing.BillingPeriod{
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		Status:      billing.PeriodStatus(m.Status),
		Counters:    counters,
		ClosingAt:   m.ClosingAt,
		ClosedAt:    m.ClosedAt,
	}
	period.ID = m.ID
	period.CreatedAt = m.CreatedAt
	period.UpdatedAt = m.UpdatedAt
	period.Version = m.Version
	period.TenantID = m.TenantID
	return period, nil
}

// BillingPeriodModelFromDomain converts a domain billing period to its model
func BillingPeriodModelFromDomain(p *billing.BillingPeriod) (*BillingPeriodModel, error) {
	raw := make(map[string]map[string]int64, len(p.Counters))
	for projectID, counts := range p.Counters {
		meterCounts := make(map[string]int64, len(counts))
		for meter, qty := range counts {
			meterCounts[string(meter)] = qty
		}
		raw[projectID.String()] = meterCounts
	}
	countersJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	m := &BillingPeriodModel{
		TenantID:     p.TenantID,
		PeriodStart:  p.PeriodStart,
		PeriodEnd:    p.PeriodEnd,
		Status:       string(p.Status),
		CountersJSON: string(countersJSON),
		ClosingAt:    p.ClosingAt,
		ClosedAt:     p.ClosedAt,
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	return m, nil
}

// rateCardMeterPrice is the JSON shape of a meter price entry
type rateCardMeterPrice struct {
	Included     int64           `json:"included"`
	OveragePrice decimal.Decimal `json:"overage_price"`
}

// RateCardModel persists per-tenant pricing configuration. Structured
// fields stay queryable; the nested maps are JSON documents.
type RateCardModel struct {
	AggregateModel
	TenantID              uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	IncludedSeats         int64           `gorm:"not null;default:0"`
	PerSeatPrice          decimal.Decimal `gorm:"type:decimal(19,4);not null;default:0"`
	StageBaseFeesJSON     string          `gorm:"column:stage_base_fees;type:jsonb;not null;default:'{}'"`
	MeterPricesJSON       string          `gorm:"column:meter_prices;type:jsonb;not null;default:'{}'"`
	VolumeTiersJSON       string          `gorm:"column:volume_tiers;type:jsonb;not null;default:'[]'"`
	AnnualDiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Currency              string          `gorm:"type:varchar(3);not null;default:'USD'"`
	ConversionRate        decimal.Decimal `gorm:"type:decimal(19,8);not null;default:1"`
}

// TableName returns the table name for GORM
func (RateCardModel) TableName() string {
	return "rate_cards"
}

// ToDomain converts the model to a domain rate card
func (m *RateCardModel) ToDomain() (*billing.RateCard, error) {
	stageBaseFees := make(map[tenancy.ProjectStage]decimal.Decimal)
	if m.StageBaseFeesJSON != "" && m.StageBaseFeesJSON != "{}" {
		raw := make(map[string]decimal.Decimal)
		if err := json.Unmarshal([]byte(m.StageBaseFeesJSON), &raw); err != nil {
			return nil, err
		}
		for stage, fee := range raw {
			stageBaseFees[tenancy.ProjectStage(stage)] = fee
		}
	}

	meterPrices := make(map[billing.Meter]billing.MeterPrice)
	if m.MeterPricesJSON != "" && m.MeterPricesJSON != "{}" {
		raw := make(map[string]rateCardMeterPrice)
		if err := json.Unmarshal([]byte(m.MeterPricesJSON), &raw); err != nil {
			return nil, err
		}
		for meter, price := range raw {
			meterPrices[billing.Meter(meter)] = billing.MeterPrice{
				Included:     price.Included,
				OveragePrice: price.OveragePrice,
			}
		}
	}

	var volumeTiers []billing.VolumeTier
	if m.VolumeTiersJSON != "" && m.VolumeTiersJSON != "[]" {
		if err := json.Unmarshal([]byte(m.VolumeTiersJSON), &volumeTiers); err != nil {
			return nil, err
		}
	}

	card := &billing.RateCard{
		IncludedSeats:         m.IncludedSeats,
		PerSeatPrice:          m.PerSeatPrice,
		StageBaseFees:         stageBaseFees,
		MeterPrices:           meterPrices,
		VolumeTiers:           volumeTiers,
		AnnualDiscountPercent: m.AnnualDiscountPercent,
		Currency:              valueobject.Currency(m.Currency),
		ConversionRate:        m.ConversionRate,
	}
	card.ID = m.ID
	card.CreatedAt = m.CreatedAt
	card.UpdatedAt = m.UpdatedAt
	card.Version = m.Version
	card.TenantID = m.TenantID
	return card, nil
}

// RateCardModelFromDomain converts a domain rate card to its model
func RateCardModelFromDomain(c *billing.RateCard) (*RateCardModel, error) {
	stageBaseFees := make(map[string]decimal.Decimal, len(c.StageBaseFees))
	for stage, fee := range c.StageBaseFees {
		stageBaseFees[string(stage)] = fee
	}
	stageBaseFeesJSON, err := json.Marshal(stageBaseFees)
	if err != nil {
		return nil, err
	}

	meterPrices := make(map[string]rateCardMeterPrice, len(c.MeterPrices))
	for meter, price := range c.MeterPrices {
		meterPrices[string(meter)] = rateCardMeterPrice{
			Included:     price.Included,
			OveragePrice: price.OveragePrice,
		}
	}
	meterPricesJSON, err := json.Marshal(meterPrices)
	if err != nil {
		return nil, err
	}

	volumeTiersJSON, err := json.Marshal(c.VolumeTiers)
	if err != nil {
		return nil, err
	}
	if c.VolumeTiers == nil {
		volumeTiersJSON = []byte("[]")
	}

	m := &RateCardModel{
		TenantID:              c.TenantID,
		IncludedSeats:         c.IncludedSeats,
		PerSeatPrice:          c.PerSeatPrice,
		StageBaseFeesJSON:     string(stageBaseFeesJSON),
		MeterPricesJSON:       string(meterPricesJSON),
		VolumeTiersJSON:       string(volumeTiersJSON),
		AnnualDiscountPercent: c.AnnualDiscountPercent,
		Currency:              string(c.Currency),
		ConversionRate:        c.ConversionRate,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m, nil
}

// InvoiceModel persists generated invoices. The unique index on
// billing_period_id enforces at most one invoice per period.
type InvoiceModel struct {
	BaseModel
	TenantID              uuid.UUID       `gorm:"type:uuid;not null;index"`
	BillingPeriodID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	PeriodStart           time.Time       `gorm:"not null"`
	PeriodEnd             time.Time       `gorm:"not null"`
	LineItemsJSON         string          `gorm:"column:line_items;type:jsonb;not null;default:'[]'"`
	Subtotal              decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	VolumeDiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	AnnualDiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	Currency              string          `gorm:"type:varchar(3);not null"`
	GeneratedAt           time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the model to a domain invoice
func (m *InvoiceModel) ToDomain() (*billing.Invoice, error) {
	var lineItems []billing.LineItem
	if m.LineItemsJSON != "" && m.LineItemsJSON != "[]" {
		if err := json.Unmarshal([]byte(m.LineItemsJSON), &lineItems); err != nil {
			return nil, err
		}
	}

	total, err := valueobject.NewMoney(m.TotalAmount, valueobject.Currency(m.Currency))
	if err != nil {
		return nil, err
	}

	return &billing.Invoice{
		BaseEntity:            m.BaseModel.ToDomain(),
		TenantID:              m.TenantID,
		BillingPeriodID:       m.BillingPeriodID,
		PeriodStart:           m.PeriodStart,
		PeriodEnd:             m.PeriodEnd,
		LineItems:             lineItems,
		Subtotal:              m.Subtotal,
		VolumeDiscountPercent: m.VolumeDiscountPercent,
		AnnualDiscountPercent: m.AnnualDiscountPercent,
		Total:                 total,
		GeneratedAt:           m.GeneratedAt,
	}, nil
}

// InvoiceModelFromDomain converts a domain invoice to its model
func InvoiceModelFromDomain(inv *billing.Invoice) (*InvoiceModel, error) {
	lineItemsJSON, err := json.Marshal(inv.LineItems)
	if err != nil {
		return nil, err
	}
	if inv.LineItems == nil {
		lineItemsJSON = []byte("[]")
	}

	m := &InvoiceModel{
		TenantID:              inv.TenantID,
		BillingPeriodID:       inv.BillingPeriodID,
		PeriodStart:           inv.PeriodStart,
		PeriodEnd:             inv.PeriodEnd,
		LineItemsJSON:         string(lineItemsJSON),
		Subtotal:              inv.Subtotal,
		VolumeDiscountPercent: inv.VolumeDiscountPercent,
		AnnualDiscountPercent: inv.AnnualDiscountPercent,
		TotalAmount:           inv.Total.Amount(),
		Currency:              string(inv.Total.Currency()),
		GeneratedAt:           inv.GeneratedAt,
	}
	m.FromDomainBaseEntity(inv.BaseEntity)
	return m, nil
}
