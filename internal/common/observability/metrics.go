package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	verifyCounter   otelmetric.Int64Counter
	verifyDuration  otelmetric.Float64Histogram
	acquireAttempts otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	verifyCounter, _ := meter.Int64Counter(
		"verifications.processed",
		otelmetric.WithDescription("Number of token verifications processed"),
	)

	verifyDuration, _ := meter.Float64Histogram(
		"verifications.duration",
		otelmetric.WithDescription("Token verification duration"),
		otelmetric.WithUnit("ms"),
	)

	acquireAttempts, _ := meter.Int64Counter(
		"acquisitions.attempted",
		otelmetric.WithDescription("Number of token acquisition cycles started"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		verifyCounter:   verifyCounter,
		verifyDuration:  verifyDuration,
		acquireAttempts: acquireAttempts,
	}
}

func (o *Observability) RecordVerification(ctx context.Context, decision string) {
	if o.verifyCounter != nil {
		o.verifyCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("decision", decision),
		))
	}
}

func (o *Observability) RecordVerificationDuration(ctx context.Context, duration time.Duration, decision string) {
	if o.verifyDuration != nil {
		o.verifyDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("decision", decision),
		))
	}
}

func (o *Observability) RecordAcquisition(ctx context.Context, action string) {
	if o.acquireAttempts != nil {
		o.acquireAttempts.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("action", action),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
