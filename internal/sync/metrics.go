package sync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mschirtzinger/workq/internal/telemetry"
)

const scopeName = "github.com/mschirtzinger/workq/sync"

// syncMetrics holds the engine's OTel instruments. With telemetry disabled
// the global providers are no-ops and every call here is free.
type syncMetrics struct {
	tracer   trace.Tracer
	pushed   metric.Int64Counter
	failed   metric.Int64Counter
	pulled   metric.Int64Counter
	duration metric.Float64Histogram
}

func newSyncMetrics() *syncMetrics {
	m := telemetry.Meter(scopeName)
	pushed, _ := m.Int64Counter("workq.sync.pushed",
		metric.WithDescription("Queue entries pushed to the remote"),
	)
	failed, _ := m.Int64Counter("workq.sync.failed",
		metric.WithDescription("Queue entries that failed to push"),
	)
	pulled, _ := m.Int64Counter("workq.sync.pulled",
		metric.WithDescription("Remote items written locally by pull"),
	)
	duration, _ := m.Float64Histogram("workq.sync.duration",
		metric.WithDescription("Full sync duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &syncMetrics{
		tracer:   telemetry.Tracer(scopeName),
		pushed:   pushed,
		failed:   failed,
		pulled:   pulled,
		duration: duration,
	}
}

func (m *syncMetrics) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name)
}

func (m *syncMetrics) recordPush(ctx context.Context, res *PushResult) {
	m.pushed.Add(ctx, int64(res.Pushed))
	m.failed.Add(ctx, int64(res.Failed))
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("workq.push.pushed", res.Pushed),
		attribute.Int("workq.push.failed", res.Failed),
		attribute.Int("workq.push.dropped", res.Dropped),
	)
}

func (m *syncMetrics) recordPull(ctx context.Context, n int) {
	m.pulled.Add(ctx, int64(n))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("workq.pull.count", n))
}

func (m *syncMetrics) recordDuration(ctx context.Context, d time.Duration, ok bool) {
	m.duration.Record(ctx, float64(d.Milliseconds()),
		metric.WithAttributes(attribute.Bool("workq.sync.ok", ok)),
	)
}
