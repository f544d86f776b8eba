package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mschirtzinger/workq/internal/remote"
	"github.com/mschirtzinger/workq/internal/types"
)

const remoteScopeName = "github.com/mschirtzinger/workq/remote"

// InstrumentedRemote wraps a RemoteSource with a span and metrics per call.
// Use WrapRemote to create one.
type InstrumentedRemote struct {
	inner  remote.RemoteSource
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ remote.RemoteSource = (*InstrumentedRemote)(nil)
var _ remote.CacheInvalidator = (*InstrumentedRemote)(nil)

// WrapRemote returns src decorated with OTel instrumentation.
// When telemetry is disabled, src is returned as-is.
func WrapRemote(src remote.RemoteSource) remote.RemoteSource {
	if !Enabled() {
		return src
	}
	m := Meter(remoteScopeName)
	ops, _ := m.Int64Counter("workq.remote.operations",
		metric.WithDescription("Total remote source calls"),
	)
	dur, _ := m.Float64Histogram("workq.remote.operation.duration",
		metric.WithDescription("Remote call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("workq.remote.errors",
		metric.WithDescription("Total failed remote calls"),
	)
	return &InstrumentedRemote{
		inner:  src,
		tracer: Tracer(remoteScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (r *InstrumentedRemote) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("workq.remote.op", name)}, attrs...)
	ctx, span := r.tracer.Start(ctx, "remote."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	r.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (r *InstrumentedRemote) done(ctx context.Context, span trace.Span, start time.Time, err error, name string) {
	attrs := metric.WithAttributes(attribute.String("workq.remote.op", name))
	r.dur.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.errs.Add(ctx, 1, attrs)
	}
	span.End()
}

func (r *InstrumentedRemote) ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	ctx, span, t := r.op(ctx, "ListItems", attribute.String("workq.iteration", filter.Iteration))
	v, err := r.inner.ListItems(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("workq.item.count", len(v)))
	}
	r.done(ctx, span, t, err, "ListItems")
	return v, err
}

func (r *InstrumentedRemote) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	ctx, span, t := r.op(ctx, "GetItem", attribute.String("workq.item.id", id))
	v, err := r.inner.GetItem(ctx, id)
	r.done(ctx, span, t, err, "GetItem")
	return v, err
}

func (r *InstrumentedRemote) CreateItem(ctx context.Context, fields types.ItemFields) (*types.WorkItem, error) {
	ctx, span, t := r.op(ctx, "CreateItem", attribute.String("workq.item.type", fields.Type))
	v, err := r.inner.CreateItem(ctx, fields)
	if err == nil {
		span.SetAttributes(attribute.String("workq.item.id", v.ID))
	}
	r.done(ctx, span, t, err, "CreateItem")
	return v, err
}

func (r *InstrumentedRemote) UpdateItem(ctx context.Context, id string, patch types.ItemPatch) (*types.WorkItem, error) {
	ctx, span, t := r.op(ctx, "UpdateItem", attribute.String("workq.item.id", id))
	v, err := r.inner.UpdateItem(ctx, id, patch)
	r.done(ctx, span, t, err, "UpdateItem")
	return v, err
}

func (r *InstrumentedRemote) DeleteItem(ctx context.Context, id string) error {
	ctx, span, t := r.op(ctx, "DeleteItem", attribute.String("workq.item.id", id))
	err := r.inner.DeleteItem(ctx, id)
	r.done(ctx, span, t, err, "DeleteItem")
	return err
}

func (r *InstrumentedRemote) AddComment(ctx context.Context, id string, input types.CommentInput) (*types.Comment, error) {
	ctx, span, t := r.op(ctx, "AddComment", attribute.String("workq.item.id", id))
	v, err := r.inner.AddComment(ctx, id, input)
	r.done(ctx, span, t, err, "AddComment")
	return v, err
}

func (r *InstrumentedRemote) GetIterations(ctx context.Context) ([]string, error) {
	ctx, span, t := r.op(ctx, "GetIterations")
	v, err := r.inner.GetIterations(ctx)
	r.done(ctx, span, t, err, "GetIterations")
	return v, err
}

func (r *InstrumentedRemote) GetCurrentIteration(ctx context.Context) (string, error) {
	ctx, span, t := r.op(ctx, "GetCurrentIteration")
	v, err := r.inner.GetCurrentIteration(ctx)
	r.done(ctx, span, t, err, "GetCurrentIteration")
	return v, err
}

func (r *InstrumentedRemote) GetStatuses(ctx context.Context) ([]string, error) {
	ctx, span, t := r.op(ctx, "GetStatuses")
	v, err := r.inner.GetStatuses(ctx)
	r.done(ctx, span, t, err, "GetStatuses")
	return v, err
}

func (r *InstrumentedRemote) GetWorkItemTypes(ctx context.Context) ([]string, error) {
	ctx, span, t := r.op(ctx, "GetWorkItemTypes")
	v, err := r.inner.GetWorkItemTypes(ctx)
	r.done(ctx, span, t, err, "GetWorkItemTypes")
	return v, err
}

// InvalidateCaches forwards to the wrapped source when it supports it.
func (r *InstrumentedRemote) InvalidateCaches() {
	if inv, ok := r.inner.(remote.CacheInvalidator); ok {
		inv.InvalidateCaches()
	}
}
