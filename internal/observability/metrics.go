package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics holds sync-engine metrics. All record methods are nil-safe so
// the engine can run without instruments wired.
type SyncMetrics struct {
	passCounter   metric.Int64Counter
	passDuration  metric.Float64Histogram
	eventCounter  metric.Int64Counter
	cleanupRows   metric.Int64Counter
}

// NewSyncMetrics creates the sync metric instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	passCounter, err := meter.Int64Counter(
		"sync.pass_count",
		metric.WithDescription("Total number of sync passes"),
		metric.WithUnit("{passes}"),
	)
	if err != nil {
		return nil, err
	}

	passDuration, err := meter.Float64Histogram(
		"sync.pass.duration",
		metric.WithDescription("Sync pass duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventCounter, err := meter.Int64Counter(
		"sync.event_count",
		metric.WithDescription("Queued events processed, by outcome"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return nil, err
	}

	cleanupRows, err := meter.Int64Counter(
		"sync.cleanup.rows_removed",
		metric.WithDescription("Terminal queue rows removed by cleanup"),
		metric.WithUnit("{rows}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		passCounter:  passCounter,
		passDuration: passDuration,
		eventCounter: eventCounter,
		cleanupRows:  cleanupRows,
	}, nil
}

// RecordPass records one completed sync pass.
func (m *SyncMetrics) RecordPass(ctx context.Context, attempted, succeeded, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.passCounter.Add(ctx, 1)
	m.passDuration.Record(ctx, float64(d.Milliseconds()))
	m.eventCounter.Add(ctx, int64(succeeded), metric.WithAttributes(attribute.String("outcome", "succeeded")))
	m.eventCounter.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
}

// RegisterQueueDepth registers an observable gauge fed by the supplied
// callback, reporting queued events by status on each metric collection.
func (m *SyncMetrics) RegisterQueueDepth(depth func(ctx context.Context) (map[string]int, error)) error {
	if m == nil || depth == nil {
		return nil
	}

	meter := otel.Meter(instrumentationName)
	gauge, err := meter.Int64ObservableGauge(
		"sync.queue.depth",
		metric.WithDescription("Queued events by status"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := depth(ctx)
		if err != nil {
			return err
		}
		for status, n := range counts {
			o.ObserveInt64(gauge, int64(n), metric.WithAttributes(attribute.String("status", status)))
		}
		return nil
	}, gauge)
	return err
}

// RecordCleanup records rows removed by the garbage collection step.
func (m *SyncMetrics) RecordCleanup(ctx context.Context, rows int) {
	if m == nil || rows == 0 {
		return
	}
	m.cleanupRows.Add(ctx, int64(rows))
}
