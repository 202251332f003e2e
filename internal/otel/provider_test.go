package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/mrzor/rtems-tracer/internal/config"
)

func TestNewResource(t *testing.T) {
	cfg := &config.OTELConfig{
		ServiceName:        "rtems-tracer",
		ResourceAttributes: "site=lab",
	}

	res, err := NewResource(context.Background(), cfg, attribute.String("rtems.top", "IOC1"))
	require.NoError(t, err)

	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "rtems-tracer", got["service.name"])
	assert.Equal(t, "lab", got["site"])
	assert.Equal(t, "IOC1", got["rtems.top"])
}

func TestInitProvider_Shutdown(t *testing.T) {
	cfg := &config.OTELConfig{ServiceName: "rtems-tracer", ExporterEndpoint: "127.0.0.1:1"}

	tp, err := InitProvider(cfg, zaptest.NewLogger(t), trace.TraceID{})
	require.NoError(t, err)
	require.NotNil(t, tp)

	assert.NoError(t, ShutdownProvider(context.Background(), tp))
	assert.NoError(t, ShutdownProvider(context.Background(), nil))
}

func TestFixedTraceIDs(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	gen := fixedTraceIDs{traceID: traceID}
	gotTrace, first := gen.NewIDs(context.Background())
	assert.Equal(t, traceID, gotTrace)
	assert.True(t, first.IsValid())

	second := gen.NewSpanID(context.Background(), traceID)
	assert.True(t, second.IsValid())
	assert.NotEqual(t, first, second)
}
