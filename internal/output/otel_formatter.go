package output

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrzor/rtems-tracer/internal/attributes"
)

// Span names.
const (
	SessionSpanName = "rtems.session"
	RunSpanName     = "thread.run"
)

// OTELSpanInfo holds the span of the thread currently running.
type OTELSpanInfo struct {
	Span      trace.Span
	ThreadID  uint32
	StartTime time.Time
}

// OTELFormatter turns transitions into spans. Each interval during which a
// thread runs becomes a thread.run span, child of one rtems.session span.
//
// It is not safe for concurrent use.
type OTELFormatter struct {
	tracer      trace.Tracer
	parent      context.Context
	evaluator   *attributes.Evaluator
	sessionAttr []attribute.KeyValue
	logger      *zap.Logger

	session  trace.Span
	ctx      context.Context
	running  *OTELSpanInfo
	lastSeen time.Time
}

// OTELOption configures an OTELFormatter.
type OTELOption func(*OTELFormatter)

// WithParent makes the session span a child of parent.
func WithParent(parent trace.SpanContext) OTELOption {
	return func(f *OTELFormatter) {
		if parent.IsValid() {
			f.parent = trace.ContextWithRemoteSpanContext(context.Background(), parent)
		}
	}
}

// WithSessionAttributes sets attributes on the session span.
func WithSessionAttributes(attrs ...attribute.KeyValue) OTELOption {
	return func(f *OTELFormatter) {
		f.sessionAttr = append(f.sessionAttr, attrs...)
	}
}

// WithEvaluator adds custom attributes to every thread.run span.
func WithEvaluator(e *attributes.Evaluator) OTELOption {
	return func(f *OTELFormatter) {
		f.evaluator = e
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OTELOption {
	return func(f *OTELFormatter) {
		f.logger = logger
	}
}

// NewOTELFormatter creates a new OTELFormatter.
func NewOTELFormatter(tracer trace.Tracer, opts ...OTELOption) *OTELFormatter {
	f := &OTELFormatter{
		tracer: tracer,
		parent: context.Background(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Emit implements Emitter. It ends the span of the outgoing thread and
// starts one for the incoming thread, both at the transition timestamp.
// The first span starts at the first transition; the seed thread's earlier
// run is not known.
func (f *OTELFormatter) Emit(t Transition) error {
	f.startSession(t.Timestamp)
	f.lastSeen = t.Timestamp

	if f.running != nil {
		f.endRun(t)
	}

	_, span := f.tracer.Start(f.ctx, RunSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(t.Timestamp),
		trace.WithAttributes(
			attribute.Int64("rtems.thread.id", int64(t.ToID)),
			attribute.String("rtems.thread.id_hex", fmt.Sprintf("0x%08x", t.ToID)),
			attribute.String("rtems.thread.name", t.ToName),
			attribute.String("rtems.switched_from", t.FromName),
		),
	)
	f.running = &OTELSpanInfo{Span: span, ThreadID: t.ToID, StartTime: t.Timestamp}
	return nil
}

func (f *OTELFormatter) startSession(ts time.Time) {
	if f.session != nil {
		return
	}
	f.ctx, f.session = f.tracer.Start(f.parent, SessionSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(ts),
		trace.WithAttributes(f.sessionAttr...),
	)
}

// endRun closes the running span with the fields of the switch record t.
func (f *OTELFormatter) endRun(t Transition) {
	info := f.running
	f.running = nil

	attrs := []attribute.KeyValue{
		attribute.Int64("rtems.state", int64(t.State)),
		attribute.String("rtems.status", t.StatusText),
		attribute.String("rtems.switched_to", t.ToName),
		attribute.Int("rtems.priority.current", int(t.PrioCurrent)),
		attribute.Int("rtems.priority.real", int(t.PrioReal)),
		attribute.String("rtems.priority.display", t.Priority.Current+"/"+t.Priority.Real),
		attribute.Int64("rtems.run.duration_ns", t.Timestamp.Sub(info.StartTime).Nanoseconds()),
	}
	if t.WaitID != 0 {
		attrs = append(attrs, attribute.String("rtems.wait_id", fmt.Sprintf("0x%08x", t.WaitID)))
	}
	if info.ThreadID != t.FromID {
		attrs = append(attrs, attribute.String("_tracing_warning_0",
			fmt.Sprintf("switch-out reported thread 0x%08x, span belongs to 0x%08x", t.FromID, info.ThreadID)))
	}

	custom, err := f.evaluator.EvaluateCustomAttributes(t.Env())
	if err != nil {
		f.logger.Warn("custom attributes failed", zap.Error(err))
	}
	attrs = append(attrs, custom...)

	info.Span.SetAttributes(attrs...)
	info.Span.SetStatus(codes.Ok, "")
	info.Span.End(trace.WithTimestamp(t.Timestamp))
}

// Close implements Emitter. The running span and the session span end at
// the last transition seen.
func (f *OTELFormatter) Close() error {
	if f.running != nil {
		f.running.Span.SetAttributes(attribute.Bool("rtems.run.open", true))
		f.running.Span.End(trace.WithTimestamp(f.lastSeen))
		f.running = nil
	}
	if f.session != nil {
		f.session.End(trace.WithTimestamp(f.lastSeen))
		f.session = nil
	}
	return nil
}
