// Package observe provides application-wide observability primitives for
// Auricle: OpenTelemetry metrics, structured logging setup, and a metrics
// listener that bridges pipeline events into instruments.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/auricle-dev/auricle/pkg/pipeline"
)

// meterName is the instrumentation scope name used for all Auricle metrics.
const meterName = "github.com/auricle-dev/auricle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesProcessed counts audio frames pumped through the stage chain.
	FramesProcessed metric.Int64Counter

	// EventsDispatched counts listener events by kind. Use with attribute:
	//   attribute.String("kind", ...)
	EventsDispatched metric.Int64Counter

	// BackendErrors counts recognition-backend errors surfaced to listeners.
	// Use with attribute: attribute.Bool("retryable", ...)
	BackendErrors metric.Int64Counter

	// Activations counts opened recognition windows.
	Activations metric.Int64Counter

	// ActivationWindow tracks how long recognition windows stay open.
	ActivationWindow metric.Float64Histogram
}

// windowBuckets defines histogram bucket boundaries (in seconds) for
// activation-window durations.
var windowBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("auricle.frames.processed",
		metric.WithDescription("Total audio frames pumped through the stage chain."),
	); err != nil {
		return nil, err
	}
	if met.EventsDispatched, err = m.Int64Counter("auricle.events.dispatched",
		metric.WithDescription("Total listener events by event kind."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("auricle.backend.errors",
		metric.WithDescription("Total recognition-backend errors by retryability."),
	); err != nil {
		return nil, err
	}
	if met.Activations, err = m.Int64Counter("auricle.activations",
		metric.WithDescription("Total opened recognition windows."),
	); err != nil {
		return nil, err
	}
	if met.ActivationWindow, err = m.Float64Histogram("auricle.activation.window",
		metric.WithDescription("Duration of recognition windows."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(windowBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordEvent increments the dispatched-events counter for kind.
func (m *Metrics) RecordEvent(ctx context.Context, kind pipeline.EventKind) {
	m.EventsDispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
	))
}
