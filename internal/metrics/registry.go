package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/davidleathers/auction-ledger/internal/domain/values"
	"github.com/davidleathers/auction-ledger/internal/service/ledger"
)

// Registry records ledger metrics through the OpenTelemetry meter provider,
// which exports them over OTLP when telemetry is enabled
type Registry struct {
	meter metric.Meter

	OperationDuration metric.Float64Histogram
	OperationCounter  metric.Int64Counter
	BidDeposits       metric.Float64Counter
	Payouts           metric.Float64Counter
	Auctions          metric.Int64ObservableGauge

	auctions atomic.Int64
}

// NewRegistry creates the instruments on the global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{meter: otel.Meter(meterName)}

	if err := r.initLedgerMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initLedgerMetrics() error {
	var err error

	r.OperationDuration, err = r.meter.Float64Histogram(
		"auction.ledger.operation_duration",
		metric.WithDescription("Duration of ledger operations in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500),
	)
	if err != nil {
		return err
	}

	r.OperationCounter, err = r.meter.Int64Counter(
		"auction.ledger.operations_total",
		metric.WithDescription("Total ledger operations by outcome code"),
	)
	if err != nil {
		return err
	}

	r.BidDeposits, err = r.meter.Float64Counter(
		"auction.ledger.bid_deposits",
		metric.WithDescription("Value deposited with accepted bids"),
		metric.WithUnit("ETH"),
	)
	if err != nil {
		return err
	}

	r.Payouts, err = r.meter.Float64Counter(
		"auction.ledger.payouts",
		metric.WithDescription("Value paid out of the ledger"),
		metric.WithUnit("ETH"),
	)
	if err != nil {
		return err
	}

	r.Auctions, err = r.meter.Int64ObservableGauge(
		"auction.ledger.auctions",
		metric.WithDescription("Auctions created since start"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.auctions.Load())
			return nil
		}),
	)
	return err
}

func (r *Registry) RecordOperation(op string, code string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("code", code),
	)
	r.OperationCounter.Add(ctx, 1, attrs)
	r.OperationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (r *Registry) RecordBid(deposit values.Amount) {
	r.BidDeposits.Add(context.Background(), ether(deposit))
}

func (r *Registry) RecordPayout(kind string, amount values.Amount) {
	r.Payouts.Add(context.Background(), ether(amount),
		metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Registry) SetAuctions(total int) {
	r.auctions.Store(int64(total))
}

// Multi fans ledger metrics out to several collectors
type Multi []ledger.MetricsCollector

func (m Multi) RecordOperation(op string, code string, duration time.Duration) {
	for _, c := range m {
		c.RecordOperation(op, code, duration)
	}
}

func (m Multi) RecordBid(deposit values.Amount) {
	for _, c := range m {
		c.RecordBid(deposit)
	}
}

func (m Multi) RecordPayout(kind string, amount values.Amount) {
	for _, c := range m {
		c.RecordPayout(kind, amount)
	}
}

func (m Multi) SetAuctions(total int) {
	for _, c := range m {
		c.SetAuctions(total)
	}
}
