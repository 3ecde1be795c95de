package billing

import (
	"fmt"
	"sort"

	"github.com/metering/backend/internal/domain/shared"
	"github.com/metering/backend/internal/domain/shared/valueobject"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/shopspring/decimal"
)

// ChargeInput carries everything the calculator needs. The calculation is
// a pure function of this input, which is what makes crash recovery safe:
// re-running it against frozen counters yields byte-identical output.
type ChargeInput struct {
	Period    *BillingPeriod
	SeatCount int64
	Projects  []*tenancy.Project
	Annual    bool
	RateCard  *RateCard
}

// Charge is the deterministic result of pricing one billing period.
// Line item amounts stay in the rate card's base pricing units; only the
// final total, after conversion, carries the invoice currency.
type Charge struct {
	LineItems             []LineItem
	Subtotal              decimal.Decimal
	VolumeDiscountPercent decimal.Decimal
	VolumeDiscountAmount  decimal.Decimal
	AnnualDiscountPercent decimal.Decimal
	AnnualDiscountAmount  decimal.Decimal
	Total                 valueobject.Money
}

// ComputeCharge prices a billing period against a rate card:
//
//  1. seat cost: overage seats beyond the included allowance
//  2. per-project: stage base fee plus per-meter overage
//  3. subtotal, then the matching volume tier discount
//  4. annual discount, multiplicative, after the volume discount
//  5. currency conversion and half-even rounding to the minor unit
//
// All arithmetic uses decimals; projects and meters are visited in a
// fixed order so that identical inputs always produce identical output.
func ComputeCharge(in ChargeInput) (*Charge, error) {
	if in.Period == nil || in.RateCard == nil {
		return nil, shared.ErrInvalidInput
	}
	card := in.RateCard
	charge := &Charge{}

	// Seat cost
	overSeats := in.SeatCount - card.IncludedSeats
	if overSeats < 0 {
		overSeats = 0
	}
	seatCost := card.PerSeatPrice.Mul(decimal.NewFromInt(overSeats))
	charge.LineItems = append(charge.LineItems, LineItem{
		Kind:        LineItemSeat,
		Description: fmt.Sprintf("%d seats (%d included)", in.SeatCount, card.IncludedSeats),
		Quantity:    overSeats,
		UnitPrice:   card.PerSeatPrice,
		Amount:      seatCost,
	})
	subtotal := seatCost

	// Per-project costs, in stable project order
	projects := make([]*tenancy.Project, len(in.Projects))
	copy(projects, in.Projects)
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ID.String() < projects[j].ID.String()
	})

	for _, project := range projects {
		projectID := project.ID
		if project.Stage.IsBillable() {
			baseFee := card.BaseFee(project.Stage)
			charge.LineItems = append(charge.LineItems, LineItem{
				Kind:        LineItemProjectBase,
				Description: fmt.Sprintf("%s (%s stage)", project.Name, project.Stage),
				ProjectID:   &projectID,
				Quantity:    1,
				UnitPrice:   baseFee,
				Amount:      baseFee,
			})
			subtotal = subtotal.Add(baseFee)
		}

		counts := in.Period.Counters[projectID]
		for _, meter := range AllMeters() {
			usage, ok := counts[meter]
			if !ok {
				continue
			}
			price := card.PriceFor(meter)
			over := usage - price.Included
			if over <= 0 {
				continue
			}
			meterCopy := meter
			amount := price.OveragePrice.Mul(decimal.NewFromInt(over))
			charge.LineItems = append(charge.LineItems, LineItem{
				Kind: LineItemOverage,
				Description: fmt.Sprintf("%s overage: %d over %d included",
					meter.DisplayName(), over, price.Included),
				ProjectID: &projectID,
				Meter:     &meterCopy,
				Quantity:  over,
				UnitPrice: price.OveragePrice,
				Amount:    amount,
			})
			subtotal = subtotal.Add(amount)
		}
	}

	charge.Subtotal = subtotal

	// Volume tier discount, inclusive threshold match
	volumePercent := card.VolumeDiscountFor(subtotal)
	discounted := subtotal
	if volumePercent.IsPositive() {
		amount := subtotal.Mul(volumePercent).Div(decimal.NewFromInt(100))
		charge.VolumeDiscountPercent = volumePercent
		charge.VolumeDiscountAmount = amount
		charge.LineItems = append(charge.LineItems, LineItem{
			Kind:        LineItemVolumeDiscount,
			Description: fmt.Sprintf("Volume discount (%s%%)", volumePercent.String()),
			UnitPrice:   volumePercent,
			Amount:      amount.Neg(),
		})
		discounted = subtotal.Sub(amount)
	} else {
		charge.VolumeDiscountPercent = decimal.Zero
		charge.VolumeDiscountAmount = decimal.Zero
	}

	// Annual prepay discount, applied after the volume discount
	if in.Annual && card.AnnualDiscountPercent.IsPositive() {
		amount := discounted.Mul(card.AnnualDiscountPercent).Div(decimal.NewFromInt(100))
		charge.AnnualDiscountPercent = card.AnnualDiscountPercent
		charge.AnnualDiscountAmount = amount
		charge.LineItems = append(charge.LineItems, LineItem{
			Kind:        LineItemAnnualDiscount,
			Description: fmt.Sprintf("Annual prepay discount (%s%%)", card.AnnualDiscountPercent.String()),
			UnitPrice:   card.AnnualDiscountPercent,
			Amount:      amount.Neg(),
		})
		discounted = discounted.Sub(amount)
	} else {
		charge.AnnualDiscountPercent = decimal.Zero
		charge.AnnualDiscountAmount = decimal.Zero
	}

	// Convert with the supplied rate and round half-even to the minor unit
	converted, err := valueobject.NewMoney(discounted.Mul(card.ConversionRate), card.Currency)
	if err != nil {
		return nil, err
	}
	charge.Total = converted.RoundToMinorUnit()

	return charge, nil
}
