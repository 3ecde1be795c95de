package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared/valueobject"
	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/metering/backend/internal/interfaces/http/dto"
	"github.com/metering/backend/internal/interfaces/http/middleware"
)

// RateCardHandler handles rate card configuration endpoints
type RateCardHandler struct {
	BaseHandler
	rateCardService *appbilling.RateCardService
}

// NewRateCardHandler creates a new RateCardHandler
func NewRateCardHandler(rateCardService *appbilling.RateCardService) *RateCardHandler {
	return &RateCardHandler{rateCardService: rateCardService}
}

// MeterPriceRequest is one meter's allowance and overage price
type MeterPriceRequest struct {
	Included     int64   `json:"included" binding:"min=0"`
	OveragePrice float64 `json:"overage_price" binding:"min=0"`
}

// VolumeTierRequest is one volume discount tier
type VolumeTierRequest struct {
	Threshold       float64 `json:"threshold" binding:"min=0"`
	DiscountPercent float64 `json:"discount_percent" binding:"min=0,max=100"`
}

// UpsertRateCardRequest creates or replaces a tenant's rate card
type UpsertRateCardRequest struct {
	IncludedSeats         int64                        `json:"included_seats" binding:"min=0"`
	PerSeatPrice          float64                      `json:"per_seat_price" binding:"min=0"`
	StageBaseFees         map[string]float64           `json:"stage_base_fees"`
	MeterPrices           map[string]MeterPriceRequest `json:"meter_prices"`
	VolumeTiers           []VolumeTierRequest          `json:"volume_tiers" binding:"dive"`
	AnnualDiscountPercent float64                      `json:"annual_discount_percent" binding:"min=0,max=100"`
	Currency              string                       `json:"currency" binding:"required,len=3"`
	ConversionRate        float64                      `json:"conversion_rate" binding:"required,gt=0"`
}

// RateCardResponse is the wire form of a rate card
type RateCardResponse struct {
	TenantID              string                        `json:"tenant_id"`
	IncludedSeats         int64                         `json:"included_seats"`
	PerSeatPrice          decimal.Decimal               `json:"per_seat_price"`
	StageBaseFees         map[string]decimal.Decimal    `json:"stage_base_fees"`
	MeterPrices           map[string]billing.MeterPrice `json:"meter_prices"`
	VolumeTiers           []billing.VolumeTier          `json:"volume_tiers"`
	AnnualDiscountPercent decimal.Decimal               `json:"annual_discount_percent"`
	Currency              string                        `json:"currency"`
	ConversionRate        decimal.Decimal               `json:"conversion_rate"`
	UpdatedAt             time.Time                     `json:"updated_at"`
}

// Upsert creates or replaces the tenant's rate card. Changes are rejected
// while the current period is already closing or closed.
func (h *RateCardHandler) Upsert(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	var req UpsertRateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	stageBaseFees := make(map[tenancy.ProjectStage]decimal.Decimal, len(req.StageBaseFees))
	for raw, fee := range req.StageBaseFees {
		stage, err := tenancy.ParseProjectStage(raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		stageBaseFees[stage] = decimal.NewFromFloat(fee)
	}

	meterPrices := make(map[billing.Meter]billing.MeterPrice, len(req.MeterPrices))
	for raw, price := range req.MeterPrices {
		meter, err := billing.ParseMeter(raw)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
			return
		}
		meterPrices[meter] = billing.MeterPrice{
			Included:     price.Included,
			OveragePrice: decimal.NewFromFloat(price.OveragePrice),
		}
	}

	volumeTiers := make([]billing.VolumeTier, 0, len(req.VolumeTiers))
	for _, tier := range req.VolumeTiers {
		volumeTiers = append(volumeTiers, billing.VolumeTier{
			Threshold:       decimal.NewFromFloat(tier.Threshold),
			DiscountPercent: decimal.NewFromFloat(tier.DiscountPercent),
		})
	}

	card, err := billing.NewRateCard(
		tenantID,
		req.IncludedSeats,
		decimal.NewFromFloat(req.PerSeatPrice),
		stageBaseFees,
		meterPrices,
		volumeTiers,
		decimal.NewFromFloat(req.AnnualDiscountPercent),
		valueobject.Currency(req.Currency),
		decimal.NewFromFloat(req.ConversionRate),
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	saved, err := h.rateCardService.Upsert(c.Request.Context(), card)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRateCardResponse(saved))
}

// Get returns the tenant's rate card
func (h *RateCardHandler) Get(c *gin.Context) {
	tenantID, ok := h.uriID(c)
	if !ok {
		return
	}

	card, err := h.rateCardService.Get(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRateCardResponse(card))
}

func toRateCardResponse(card *billing.RateCard) RateCardResponse {
	stageBaseFees := make(map[string]decimal.Decimal, len(card.StageBaseFees))
	for stage, fee := range card.StageBaseFees {
		stageBaseFees[stage.String()] = fee
	}
	meterPrices := make(map[string]billing.MeterPrice, len(card.MeterPrices))
	for meter, price := range card.MeterPrices {
		meterPrices[meter.String()] = price
	}
	return RateCardResponse{
		TenantID:              card.TenantID.String(),
		IncludedSeats:         card.IncludedSeats,
		PerSeatPrice:          card.PerSeatPrice,
		StageBaseFees:         stageBaseFees,
		MeterPrices:           meterPrices,
		VolumeTiers:           card.VolumeTiers,
		AnnualDiscountPercent: card.AnnualDiscountPercent,
		Currency:              string(card.Currency),
		ConversionRate:        card.ConversionRate,
		UpdatedAt:             card.UpdatedAt,
	}
}
