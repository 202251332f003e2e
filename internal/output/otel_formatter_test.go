package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/mrzor/rtems-tracer/internal/attributes"
	"github.com/mrzor/rtems-tracer/internal/config"
)

func newRecorderTracer(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(testContext(t)) //nolint:errcheck // Test cleanup
	})
	return recorder, tp.Tracer("test")
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func switchAt(offset time.Duration, from, to uint32, fromName, toName string) Transition {
	tr := sampleTransition()
	tr.Timestamp = t0.Add(offset)
	tr.FromID, tr.ToID = from, to
	tr.FromName, tr.ToName = fromName, toName
	return tr
}

func TestOTELFormatter_RunSpans(t *testing.T) {
	recorder, tracer := newRecorderTracer(t)
	f := NewOTELFormatter(tracer,
		WithSessionAttributes(attribute.String("rtems.top", "IOC1")),
		WithLogger(zaptest.NewLogger(t)))

	require.NoError(t, f.Emit(switchAt(0, 5, 7, "TSK5", "TSK7")))
	require.NoError(t, f.Emit(switchAt(3*time.Millisecond, 7, 5, "TSK7", "TSK5")))
	assert.Len(t, recorder.Ended(), 1, "only the finished run has ended")

	require.NoError(t, f.Close())
	spans := recorder.Ended()
	require.Len(t, spans, 3)

	run := spans[0]
	assert.Equal(t, RunSpanName, run.Name())
	assert.True(t, run.StartTime().Equal(t0))
	assert.True(t, run.EndTime().Equal(t0.Add(3*time.Millisecond)))
	attrs := attrMap(run.Attributes())
	assert.Equal(t, "TSK7", attrs["rtems.thread.name"])
	assert.Equal(t, "0x00000007", attrs["rtems.thread.id_hex"])
	assert.Equal(t, "WAITING FOR SEMAPHORE", attrs["rtems.status"])
	assert.Equal(t, "0x1a010003", attrs["rtems.wait_id"])
	assert.Equal(t, "3000000", attrs["rtems.run.duration_ns"])
	assert.NotContains(t, attrs, "_tracing_warning_0")

	open := spans[1]
	assert.Equal(t, "TSK5", attrMap(open.Attributes())["rtems.thread.name"])
	assert.Equal(t, "true", attrMap(open.Attributes())["rtems.run.open"])

	session := spans[2]
	assert.Equal(t, SessionSpanName, session.Name())
	assert.Equal(t, "IOC1", attrMap(session.Attributes())["rtems.top"])
	assert.Equal(t, session.SpanContext().SpanID(), run.Parent().SpanID())
	assert.Equal(t, session.SpanContext().TraceID(), open.SpanContext().TraceID())
}

func TestOTELFormatter_MismatchedSwitchOut(t *testing.T) {
	recorder, tracer := newRecorderTracer(t)
	f := NewOTELFormatter(tracer)

	require.NoError(t, f.Emit(switchAt(0, 5, 7, "TSK5", "TSK7")))
	require.NoError(t, f.Emit(switchAt(time.Millisecond, 9, 5, "TSK9", "TSK5")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, attrMap(spans[0].Attributes())["_tracing_warning_0"], "0x00000009")
}

func TestOTELFormatter_CustomAttributes(t *testing.T) {
	recorder, tracer := newRecorderTracer(t)
	evaluator, err := attributes.NewEvaluator([]config.CustomAttribute{
		{Name: "blocked", Expression: `wait_id != 0`},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	f := NewOTELFormatter(tracer, WithEvaluator(evaluator))
	require.NoError(t, f.Emit(switchAt(0, 5, 7, "TSK5", "TSK7")))
	require.NoError(t, f.Emit(switchAt(time.Millisecond, 7, 5, "TSK7", "TSK5")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "true", attrMap(spans[0].Attributes())["blocked"])
}

func TestOTELFormatter_Parent(t *testing.T) {
	recorder, tracer := newRecorderTracer(t)
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	f := NewOTELFormatter(tracer, WithParent(parent))
	require.NoError(t, f.Emit(switchAt(0, 5, 7, "TSK5", "TSK7")))
	require.NoError(t, f.Close())

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	session := spans[1]
	assert.Equal(t, traceID, session.SpanContext().TraceID())
	assert.Equal(t, spanID, session.Parent().SpanID())
}

func TestOTELFormatter_CloseWithoutTransitions(t *testing.T) {
	recorder, tracer := newRecorderTracer(t)
	f := NewOTELFormatter(tracer)
	require.NoError(t, f.Close())
	assert.Empty(t, recorder.Ended())
}
