package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/restkit/logger"
)

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The provider must be shut down on exit.
func InitMeter(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded by the runner, the durable queue and
// the controller. A nil *Metrics records nothing.
type Metrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestActive   metric.Int64UpDownCounter
	errorTotal      metric.Int64Counter
	capacity        metric.Int64Gauge
	cacheLookups    metric.Int64Counter
	queuePending    metric.Int64UpDownCounter
	queueAttempts   metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.requestTotal, err = meter.Int64Counter("restkit.request.total",
		metric.WithDescription("Requests completed by the runner")); err != nil {
		return nil, fmt.Errorf("creating restkit.request.total counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("restkit.request.duration",
		metric.WithDescription("Duration of runner requests in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating restkit.request.duration histogram: %w", err)
	}
	if m.requestActive, err = meter.Int64UpDownCounter("restkit.request.active",
		metric.WithDescription("Requests holding a concurrency slot")); err != nil {
		return nil, fmt.Errorf("creating restkit.request.active counter: %w", err)
	}
	if m.errorTotal, err = meter.Int64Counter("restkit.error.total",
		metric.WithDescription("Errors by taxonomy code and component")); err != nil {
		return nil, fmt.Errorf("creating restkit.error.total counter: %w", err)
	}
	if m.capacity, err = meter.Int64Gauge("restkit.runner.capacity",
		metric.WithDescription("Current concurrency cap of the runner")); err != nil {
		return nil, fmt.Errorf("creating restkit.runner.capacity gauge: %w", err)
	}
	if m.cacheLookups, err = meter.Int64Counter("restkit.cache.lookups",
		metric.WithDescription("Cache lookups by outcome")); err != nil {
		return nil, fmt.Errorf("creating restkit.cache.lookups counter: %w", err)
	}
	if m.queuePending, err = meter.Int64UpDownCounter("restkit.queue.pending",
		metric.WithDescription("Entries waiting in the durable queue")); err != nil {
		return nil, fmt.Errorf("creating restkit.queue.pending counter: %w", err)
	}
	if m.queueAttempts, err = meter.Int64Counter("restkit.queue.attempts",
		metric.WithDescription("Durable queue attempts by outcome")); err != nil {
		return nil, fmt.Errorf("creating restkit.queue.attempts counter: %w", err)
	}
	return &m, nil
}

// RecordRequestStart increments the active request count.
func (m *Metrics) RecordRequestStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.requestActive.Add(ctx, 1)
}

// RecordRequestEnd decrements active requests and records the completed
// request. outcome is "ok", "cancelled" or an error code.
func (m *Metrics) RecordRequestEnd(ctx context.Context, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestActive.Add(ctx, -1)
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMethod, method),
		attribute.String(AttrOutcome, outcome),
	))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrMethod, method),
	))
}

// RecordError records an error by code and component.
func (m *Metrics) RecordError(ctx context.Context, code, component string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.String(AttrComponent, component),
	))
}

// RecordCapacity records the concurrency cap chosen for a reachability status.
func (m *Metrics) RecordCapacity(ctx context.Context, capacity int, reachability string) {
	if m == nil {
		return
	}
	m.capacity.Record(ctx, int64(capacity), metric.WithAttributes(
		attribute.String(AttrReachability, reachability),
	))
}

// RecordCacheLookup records a cache read for a policy.
func (m *Metrics) RecordCacheLookup(ctx context.Context, policy string, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCachePolicy, policy),
		attribute.Bool(AttrCacheHit, hit),
	))
}

// RecordQueuePending adjusts the number of pending durable entries.
func (m *Metrics) RecordQueuePending(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.queuePending.Add(ctx, delta)
}

// RecordQueueAttempt records one durable queue attempt. outcome is
// "succeeded", "retry" or "exhausted".
func (m *Metrics) RecordQueueAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.queueAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrOutcome, outcome),
	))
}
