// Package tracing records pipeline runs as OpenTelemetry spans.
package tracing

import (
	"context"
	"sync"

	"github.com/dcshock/runpipe/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used when none is given.
const InstrumentationName = "github.com/dcshock/runpipe"

// Reporter opens one span per run, adds an event per checkpoint and ends the
// span when the checkpoint is retired or the run fails. Safe for concurrent
// runs.
type Reporter struct {
	tracer trace.Tracer
	spans  sync.Map // run ID -> trace.Span
}

// NewReporter returns a Reporter using tracer, or the global provider's tracer if nil.
func NewReporter(tracer trace.Tracer) *Reporter {
	if tracer == nil {
		tracer = otel.Tracer(InstrumentationName)
	}
	return &Reporter{tracer: tracer}
}

func (r *Reporter) span(rc *pipeline.RunContext) (trace.Span, bool) {
	v, ok := r.spans.Load(rc.RunID)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

func (r *Reporter) end(rc *pipeline.RunContext) (trace.Span, bool) {
	v, ok := r.spans.LoadAndDelete(rc.RunID)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

func (r *Reporter) RunStarted(ctx context.Context, rc *pipeline.RunContext) error {
	attrs := []attribute.KeyValue{
		attribute.String("runpipe.scope", rc.Scope),
		attribute.String("runpipe.pipeline", rc.Pipeline),
		attribute.String("runpipe.run_id", rc.RunID),
	}
	for k, v := range rc.Annotations {
		attrs = append(attrs, attribute.String("runpipe.annotation."+k, v))
	}
	_, span := r.tracer.Start(ctx, "pipeline.run",
		trace.WithTimestamp(rc.StartedAt),
		trace.WithAttributes(attrs...),
	)
	r.spans.Store(rc.RunID, span)
	return nil
}

func (r *Reporter) RecordProcessed(ctx context.Context, rc *pipeline.RunContext, count int) error {
	return nil
}

func (r *Reporter) RunCompleted(ctx context.Context, rc *pipeline.RunContext, count int) error {
	if span, ok := r.span(rc); ok {
		span.SetAttributes(attribute.Int("runpipe.processed", count))
	}
	return nil
}

func (r *Reporter) RunFailed(ctx context.Context, rc *pipeline.RunContext, cause error) error {
	span, ok := r.end(rc)
	if !ok {
		return nil
	}
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	span.End()
	return nil
}

func (r *Reporter) CheckpointSaved(ctx context.Context, rc *pipeline.RunContext, snap pipeline.Snapshot) error {
	if span, ok := r.span(rc); ok {
		span.AddEvent("checkpoint.saved", trace.WithAttributes(
			attribute.Int("runpipe.checkpoint.sequence", snap.Sequence),
			attribute.Int64("runpipe.checkpoint.processed", snap.Processed),
			attribute.Int64("runpipe.checkpoint.source_offset", snap.SourceOffset),
		))
	}
	return nil
}

func (r *Reporter) CheckpointRetired(ctx context.Context, rc *pipeline.RunContext) error {
	span, ok := r.end(rc)
	if !ok {
		return nil
	}
	span.AddEvent("checkpoint.retired")
	span.SetStatus(codes.Ok, "")
	span.End()
	return nil
}

var _ pipeline.CheckpointObserver = (*Reporter)(nil)
