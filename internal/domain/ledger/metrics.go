package ledger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("motoledger/ledger")
	meter  = otel.Meter("motoledger/ledger")
)

type metrics struct {
	operations metric.Int64Counter
	quantity   metric.Float64Counter
}

func newMetrics() *metrics {
	// Instrument creation only fails on invalid names; the returned instrument is a no-op then.
	ops, _ := meter.Int64Counter("ledger.operations",
		metric.WithDescription("Ledger operations by kind and final state"))
	qty, _ := meter.Float64Counter("ledger.quantity",
		metric.WithDescription("Quantity moved by committed ledger operations"))
	return &metrics{operations: ops, quantity: qty}
}

func (m *metrics) finished(ctx context.Context, kind OpKind, state OpState) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("state", string(state)),
	))
}

func (m *metrics) moved(ctx context.Context, kind OpKind, qty float64) {
	m.quantity.Add(ctx, qty, metric.WithAttributes(attribute.String("kind", string(kind))))
}
