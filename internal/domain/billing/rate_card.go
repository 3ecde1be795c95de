package billing

import (
	"sort"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/shared/valueobject"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeterPrice pairs an included allowance with a per-unit overage price
type MeterPrice struct {
	Included     int64           `json:"included"`
	OveragePrice decimal.Decimal `json:"overage_price"`
}

// VolumeTier grants a percentage discount once the subtotal reaches the
// threshold. Tiers are independent per period, never cumulative: the
// highest threshold not exceeding the subtotal wins, inclusive.
type VolumeTier struct {
	Threshold       decimal.Decimal `json:"threshold"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// RateCard is the strongly-typed pricing configuration for a tenant.
// It replaces freeform per-tenant settings blobs so that tier and
// threshold logic is statically checkable.
type RateCard struct {
	shared.TenantAggregateRoot
	IncludedSeats         int64
	PerSeatPrice          decimal.Decimal
	StageBaseFees         map[tenancy.ProjectStage]decimal.Decimal
	MeterPrices           map[Meter]MeterPrice
	VolumeTiers           []VolumeTier // sorted by threshold ascending
	AnnualDiscountPercent decimal.Decimal
	Currency              valueobject.Currency
	ConversionRate        decimal.Decimal // supplied externally, applied to the final amount
}

// NewRateCard creates a rate card for a tenant and validates it
func NewRateCard(
	tenantID uuid.UUID,
	includedSeats int64,
	perSeatPrice decimal.Decimal,
	stageBaseFees map[tenancy.ProjectStage]decimal.Decimal,
	meterPrices map[Meter]MeterPrice,
	volumeTiers []VolumeTier,
	annualDiscountPercent decimal.Decimal,
	currency valueobject.Currency,
	conversionRate decimal.Decimal,
) (*RateCard, error) {
	card := &RateCard{
		TenantAggregateRoot:   shared.NewTenantAggregateRoot(tenantID),
		IncludedSeats:         includedSeats,
		PerSeatPrice:          perSeatPrice,
		StageBaseFees:         stageBaseFees,
		MeterPrices:           meterPrices,
		VolumeTiers:           volumeTiers,
		AnnualDiscountPercent: annualDiscountPercent,
		Currency:              currency,
		ConversionRate:        conversionRate,
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	card.sortTiers()
	return card, nil
}

// Validate checks the rate card's fields for consistency
func (r *RateCard) Validate() error {
	if r.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_RATE_CARD", "Tenant ID cannot be empty")
	}
	if r.IncludedSeats < 0 {
		return shared.NewDomainError("INVALID_RATE_CARD", "Included seats cannot be negative")
	}
	if r.PerSeatPrice.IsNegative() {
		return shared.NewDomainError("INVALID_RATE_CARD", "Per-seat price cannot be negative")
	}
	for stage, fee := range r.StageBaseFees {
		if !stage.IsValid() {
			return shared.NewDomainError("INVALID_RATE_CARD", "Unknown project stage: "+stage.String())
		}
		if fee.IsNegative() {
			return shared.NewDomainError("INVALID_RATE_CARD", "Base fee cannot be negative for stage "+stage.String())
		}
	}
	for meter, price := range r.MeterPrices {
		if !meter.IsValid() {
			return shared.NewDomainError("INVALID_RATE_CARD", "Unknown meter: "+meter.String())
		}
		if price.Included < 0 {
			return shared.NewDomainError("INVALID_RATE_CARD", "Included allowance cannot be negative for meter "+meter.String())
		}
		if price.OveragePrice.IsNegative() {
			return shared.NewDomainError("INVALID_RATE_CARD", "Overage price cannot be negative for meter "+meter.String())
		}
	}
	seen := make(map[string]bool, len(r.VolumeTiers))
	for _, tier := range r.VolumeTiers {
		if tier.Threshold.IsNegative() {
			return shared.NewDomainError("INVALID_RATE_CARD", "Tier threshold cannot be negative")
		}
		if tier.DiscountPercent.IsNegative() || tier.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return shared.NewDomainError("INVALID_RATE_CARD", "Tier discount must be between 0 and 100 percent")
		}
		key := tier.Threshold.String()
		if seen[key] {
			return shared.NewDomainError("INVALID_RATE_CARD", "Duplicate tier threshold "+key)
		}
		seen[key] = true
	}
	if r.AnnualDiscountPercent.IsNegative() || r.AnnualDiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return shared.NewDomainError("INVALID_RATE_CARD", "Annual discount must be between 0 and 100 percent")
	}
	if r.Currency == "" {
		return shared.NewDomainError("INVALID_RATE_CARD", "Currency cannot be empty")
	}
	if !r.ConversionRate.IsPositive() {
		return shared.NewDomainError("INVALID_RATE_CARD", "Conversion rate must be positive")
	}
	return nil
}

// sortTiers orders tiers by threshold ascending for lookup
func (r *RateCard) sortTiers() {
	sort.Slice(r.VolumeTiers, func(i, j int) bool {
		return r.VolumeTiers[i].Threshold.LessThan(r.VolumeTiers[j].Threshold)
	})
}

// BaseFee returns the base fee for a project stage, zero when unset
func (r *RateCard) BaseFee(stage tenancy.ProjectStage) decimal.Decimal {
	if fee, ok := r.StageBaseFees[stage]; ok {
		return fee
	}
	return decimal.Zero
}

// PriceFor returns the meter's allowance and overage price. Meters without
// an entry have no allowance and a zero overage price.
func (r *RateCard) PriceFor(meter Meter) MeterPrice {
	if price, ok := r.MeterPrices[meter]; ok {
		return price
	}
	return MeterPrice{Included: 0, OveragePrice: decimal.Zero}
}

// VolumeDiscountFor finds the discount for a subtotal: the highest tier
// whose threshold is less than or equal to the subtotal. A subtotal
// exactly on a threshold receives that tier's discount. Returns zero when
// no tier matches. Does not assume the tiers are sorted.
func (r *RateCard) VolumeDiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	discount := decimal.Zero
	var best *decimal.Decimal
	for _, tier := range r.VolumeTiers {
		if subtotal.GreaterThanOrEqual(tier.Threshold) {
			if best == nil || tier.Threshold.GreaterThan(*best) {
				t := tier.Threshold
				best = &t
				discount = tier.DiscountPercent
			}
		}
	}
	return discount
}
