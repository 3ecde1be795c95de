package billing

import (
	"time"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemKind classifies invoice line items
type LineItemKind string

const (
	LineItemSeat           LineItemKind = "seat"
	LineItemProjectBase    LineItemKind = "project_base"
	LineItemOverage        LineItemKind = "overage"
	LineItemVolumeDiscount LineItemKind = "volume_discount"
	LineItemAnnualDiscount LineItemKind = "annual_discount"
)

// LineItem is one priced row on an invoice. Amounts are kept as decimals
// in the rate card's base pricing; discount rows carry negative amounts.
type LineItem struct {
	Kind        LineItemKind    `json:"kind"`
	Description string          `json:"description"`
	ProjectID   *uuid.UUID      `json:"project_id,omitempty"`
	Meter       *Meter          `json:"meter,omitempty"`
	Quantity    int64           `json:"quantity,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is the immutable record of charges for one closed billing
// period. A period has at most one invoice; regenerating returns the
// existing invoice unchanged.
type Invoice struct {
	shared.BaseEntity
	TenantID              uuid.UUID
	BillingPeriodID       uuid.UUID // unique, 1:1 with the closed period
	PeriodStart           time.Time
	PeriodEnd             time.Time
	LineItems             []LineItem
	Subtotal              decimal.Decimal
	VolumeDiscountPercent decimal.Decimal
	AnnualDiscountPercent decimal.Decimal
	Total                 valueobject.Money
	GeneratedAt           time.Time
}

// NewInvoice creates an invoice from a computed charge
func NewInvoice(period *BillingPeriod, charge *Charge, now time.Time) (*Invoice, error) {
	if period == nil || charge == nil {
		return nil, shared.ErrInvalidInput
	}
	return &Invoice{
		BaseEntity:            shared.NewBaseEntity(),
		TenantID:              period.TenantID,
		BillingPeriodID:       period.ID,
		PeriodStart:           period.PeriodStart,
		PeriodEnd:             period.PeriodEnd,
		LineItems:             charge.LineItems,
		Subtotal:              charge.Subtotal,
		VolumeDiscountPercent: charge.VolumeDiscountPercent,
		AnnualDiscountPercent: charge.AnnualDiscountPercent,
		Total:                 charge.Total,
		GeneratedAt:           now,
	}, nil
}
