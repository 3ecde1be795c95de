package telemetry

import (
	"context"
	"errors"

	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a nil meter is passed to a metrics constructor
var ErrMeterNil = errors.New("meter cannot be nil")

// BillingMetrics tracks usage ingestion and invoicing activity
type BillingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	ingestTotal    *Counter
	invoiceTotal   *Counter
	invoiceAmounts *Histogram
}

// NewBillingMetrics creates a new BillingMetrics instance
func NewBillingMetrics(meter metric.Meter, logger *zap.Logger) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{
		meter:  meter,
		logger: logger,
	}

	var err error

	bm.ingestTotal, err = NewCounter(
		meter,
		"metering_usage_events_total",
		"Total number of usage events by meter and outcome",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	bm.invoiceTotal, err = NewCounter(
		meter,
		"metering_invoices_total",
		"Total number of invoices generated",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	bm.invoiceAmounts, err = NewHistogram(
		meter,
		"metering_invoice_amount",
		"Distribution of invoice totals in the invoice currency",
		"{amount}",
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// RecordIngest records one ingestion outcome (applied, duplicate, rejected)
func (bm *BillingMetrics) RecordIngest(ctx context.Context, meter billing.Meter, outcome string) {
	bm.ingestTotal.Inc(ctx,
		attribute.String("meter", string(meter)),
		attribute.String("outcome", outcome),
	)
}

// RecordInvoice records one generated invoice and its total
func (bm *BillingMetrics) RecordInvoice(ctx context.Context, currency string, total decimal.Decimal) {
	attrs := []attribute.KeyValue{
		attribute.String("currency", currency),
	}
	bm.invoiceTotal.Inc(ctx, attrs...)
	bm.invoiceAmounts.Record(ctx, total.InexactFloat64(), attrs...)
}

// Ensure BillingMetrics implements the application metric interfaces
var (
	_ appbilling.IngestMetrics = (*BillingMetrics)(nil)
	_ appbilling.CloseMetrics  = (*BillingMetrics)(nil)
)
