package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records liveinsight client metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventTracked records an event entering the queue.
	RecordEventTracked(ctx context.Context, eventType string)

	// RecordDelivery records the final result of one batch delivery.
	RecordDelivery(ctx context.Context, batchSize, attempts int, duration time.Duration, err error)

	// RecordBatchDropped records a batch discarded without a final attempt.
	RecordBatchDropped(ctx context.Context, batchSize int, reason string)

	// RecordTokenFetch records a CSRF token request.
	RecordTokenFetch(ctx context.Context, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsTracked    metric.Int64Counter
	batchesSent      metric.Int64Counter
	batchesFailed    metric.Int64Counter
	batchesDropped   metric.Int64Counter
	deliveryAttempts metric.Int64Counter
	deliveryLatency  metric.Float64Histogram
	tokenFetches     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("liveinsight")

	eventsTracked, err := meter.Int64Counter("liveinsight.events.tracked",
		metric.WithDescription("Number of events queued for delivery"),
	)
	if err != nil {
		return nil, err
	}

	batchesSent, err := meter.Int64Counter("liveinsight.batches.sent",
		metric.WithDescription("Number of batches accepted by the collector"),
	)
	if err != nil {
		return nil, err
	}

	batchesFailed, err := meter.Int64Counter("liveinsight.batches.failed",
		metric.WithDescription("Number of batches dropped after exhausting retries"),
	)
	if err != nil {
		return nil, err
	}

	batchesDropped, err := meter.Int64Counter("liveinsight.batches.dropped",
		metric.WithDescription("Number of batches discarded before delivery"),
	)
	if err != nil {
		return nil, err
	}

	deliveryAttempts, err := meter.Int64Counter("liveinsight.delivery.attempts",
		metric.WithDescription("Number of delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("liveinsight.delivery.latency_ms",
		metric.WithDescription("Batch delivery latency including retries, in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	tokenFetches, err := meter.Int64Counter("liveinsight.csrf.fetches",
		metric.WithDescription("Number of CSRF token requests"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsTracked:    eventsTracked,
		batchesSent:      batchesSent,
		batchesFailed:    batchesFailed,
		batchesDropped:   batchesDropped,
		deliveryAttempts: deliveryAttempts,
		deliveryLatency:  deliveryLatency,
		tokenFetches:     tokenFetches,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEventTracked records a queued event.
func (m *otelMetrics) RecordEventTracked(ctx context.Context, eventType string) {
	m.eventsTracked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordDelivery records a batch delivery result.
func (m *otelMetrics) RecordDelivery(ctx context.Context, batchSize, attempts int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))

	m.deliveryAttempts.Add(ctx, int64(attempts), attrs)
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		m.batchesFailed.Add(ctx, 1)
		return
	}
	m.batchesSent.Add(ctx, 1, metric.WithAttributes(attribute.Int("batch_size", batchSize)))
}

// RecordBatchDropped records a discarded batch.
func (m *otelMetrics) RecordBatchDropped(ctx context.Context, _ int, reason string) {
	m.batchesDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordTokenFetch records a token request.
func (m *otelMetrics) RecordTokenFetch(ctx context.Context, err error) {
	m.tokenFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", err == nil),
	))
}
