package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records request-level metrics through OpenTelemetry. The
// exporter registers with the default Prometheus registry, so the values show
// up on the same /metrics endpoint as the promauto collectors.
type Observability struct {
	meterProvider   *metric.MeterProvider
	requestCounter  otelmetric.Int64Counter
	requestDuration otelmetric.Float64Histogram
	upstreamLatency otelmetric.Float64Histogram
}

// New builds the meter provider. A zero Observability is safe to use and
// records nothing.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	requestCounter, err := meter.Int64Counter(
		"ask.requests",
		otelmetric.WithDescription("Number of ask requests handled"),
	)
	if err != nil {
		return &Observability{}, err
	}

	requestDuration, err := meter.Float64Histogram(
		"ask.duration",
		otelmetric.WithDescription("End-to-end ask request duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return &Observability{}, err
	}

	upstreamLatency, err := meter.Float64Histogram(
		"upstream.duration",
		otelmetric.WithDescription("Latency of calls to embedding, completion and scraper services"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return &Observability{}, err
	}

	return &Observability{
		meterProvider:   provider,
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
		upstreamLatency: upstreamLatency,
	}, nil
}

// RecordRequest counts one request and its duration.
func (o *Observability) RecordRequest(ctx context.Context, intent, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("intent", intent),
		attribute.String("outcome", outcome),
	)
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, attrs)
	}
	if o.requestDuration != nil {
		o.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordUpstream records the latency of one call to an external service.
func (o *Observability) RecordUpstream(ctx context.Context, service string, duration time.Duration, err error) {
	if o == nil || o.upstreamLatency == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.upstreamLatency.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("service", service),
		attribute.String("status", status),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
