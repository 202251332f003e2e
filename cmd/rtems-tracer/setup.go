package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrzor/rtems-tracer/internal/attributes"
	"github.com/mrzor/rtems-tracer/internal/config"
	"github.com/mrzor/rtems-tracer/internal/otel"
	"github.com/mrzor/rtems-tracer/internal/output"
)

type flagValues struct {
	configPath string
	cfg        config.Config
}

func bindFlags(cmd *cobra.Command, f *flagValues) {
	d := config.Defaults()
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.cfg.Prefix, "prefix", "", "PV prefix of the stats record (default <top>:rtems:stats)")
	fs.StringVar(&f.cfg.NATSURL, "nats-url", d.NATSURL, "NATS URL of the PV gateway")
	fs.StringVar(&f.cfg.ByteOrder, "byte-order", d.ByteOrder, "byte order of the event records (little or big)")
	fs.BoolVar(&f.cfg.RTEMSPriorities, "rtems-priorities", d.RTEMSPriorities, "print raw RTEMS priorities instead of the 0-99 scale")
	fs.BoolVar(&f.cfg.Color, "color", d.Color, "highlight priorities outside the 0-99 scale")
	fs.StringVar(&f.cfg.Output, "output", d.Output, "output mode: console, otel or both")
	fs.StringVar(&f.cfg.Filter, "filter", "", "expression selecting the transitions to emit")
	fs.StringVar(&f.cfg.Attributes, "attributes", "", "custom span attributes, NAME=EXPR separated by ';'")
	fs.StringVar(&f.cfg.TraceID, "trace-id", "", "expression producing the trace id")
	fs.StringVar(&f.cfg.ParentID, "parent-id", "", "expression producing the parent span id")
	fs.DurationVar(&f.cfg.DatasetTTL, "dataset-ttl", d.DatasetTTL, "drop incomplete datasets not updated for this long; 0 keeps them forever")
	fs.IntVar(&f.cfg.QueueSize, "queue-size", d.QueueSize, "updates buffered between the transport and the session")
	fs.IntVar(&f.cfg.RetiredKeys, "retired-keys", d.RetiredKeys, "completed dataset keys remembered to detect late updates")
	fs.StringVar(&f.cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&f.cfg.LogLevel, "log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&f.cfg.LogDevelopment, "log-development", d.LogDevelopment, "human readable logs")
}

// loadConfig layers the environment, the config file, flags and the
// positional top name, then validates the result.
func loadConfig(cmd *cobra.Command, f *flagValues, args []string) (*config.Config, error) {
	cfg, err := config.ParseEnvConfig()
	if err != nil {
		return nil, err
	}
	if f.configPath != "" {
		if err := config.LoadFile(f.configPath, cfg); err != nil {
			return nil, err
		}
	}

	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("prefix", func() { cfg.Prefix = f.cfg.Prefix })
	set("nats-url", func() { cfg.NATSURL = f.cfg.NATSURL })
	set("byte-order", func() { cfg.ByteOrder = f.cfg.ByteOrder })
	set("rtems-priorities", func() { cfg.RTEMSPriorities = f.cfg.RTEMSPriorities })
	set("color", func() { cfg.Color = f.cfg.Color })
	set("output", func() { cfg.Output = f.cfg.Output })
	set("filter", func() { cfg.Filter = f.cfg.Filter })
	set("attributes", func() { cfg.Attributes = f.cfg.Attributes })
	set("trace-id", func() { cfg.TraceID = f.cfg.TraceID })
	set("parent-id", func() { cfg.ParentID = f.cfg.ParentID })
	set("dataset-ttl", func() { cfg.DatasetTTL = f.cfg.DatasetTTL })
	set("queue-size", func() { cfg.QueueSize = f.cfg.QueueSize })
	set("retired-keys", func() { cfg.RetiredKeys = f.cfg.RetiredKeys })
	set("metrics-addr", func() { cfg.MetricsAddr = f.cfg.MetricsAddr })
	set("log-level", func() { cfg.LogLevel = f.cfg.LogLevel })
	set("log-development", func() { cfg.LogDevelopment = f.cfg.LogDevelopment })

	if len(args) > 0 {
		cfg.Top = args[0]
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEmitter assembles the configured outputs. The returned func closes
// them and flushes the tracer provider.
func buildEmitter(cfg *config.Config, sessionID string, logger *zap.Logger) (output.Emitter, func(), error) {
	var emitters output.Multi
	if cfg.WantsConsole() {
		emitters = append(emitters, output.NewConsole(os.Stdout, cfg.Color))
	}

	var tp *sdktrace.TracerProvider
	if cfg.WantsOTEL() {
		formatter, provider, err := setupOTEL(cfg, sessionID, logger)
		if err != nil {
			return nil, nil, err
		}
		tp = provider
		emitters = append(emitters, formatter)
	}

	filter, err := attributes.NewFilter(cfg.Filter)
	if err != nil {
		return nil, nil, err
	}
	var emitter output.Emitter = emitters
	if cfg.Filter != "" {
		emitter = output.NewFiltered(emitters, filter)
	}

	closeAll := func() {
		if err := emitter.Close(); err != nil {
			logger.Warn("error closing outputs", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(ctx, tp); err != nil {
			logger.Warn("error shutting down OTEL provider", zap.Error(err))
		}
	}
	return emitter, closeAll, nil
}

// setupOTEL evaluates the session trace and parent ids and creates the span
// formatter with its provider.
func setupOTEL(cfg *config.Config, sessionID string, logger *zap.Logger) (*output.OTELFormatter, *sdktrace.TracerProvider, error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}

	env := attributes.SessionEnv(cfg.Top, cfg.Prefix, sessionID)
	traceEval, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return nil, nil, err
	}
	traceID, traceWarnings, err := traceEval.EvaluateAndValidate(env)
	if err != nil {
		return nil, nil, err
	}
	parentEval, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return nil, nil, err
	}
	parentID, parentWarnings, err := parentEval.EvaluateAndValidate(env)
	if err != nil {
		return nil, nil, err
	}
	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes, logger)
	if err != nil {
		return nil, nil, err
	}

	tp, err := otel.InitProvider(otelCfg, logger, traceID,
		attribute.String("service.version", fmt.Sprintf("%s (%s)", version, commit)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	sessionAttrs := []attribute.KeyValue{
		attribute.String("rtems.session.id", sessionID),
		attribute.String("rtems.top", cfg.Top),
		attribute.String("rtems.prefix", cfg.Prefix),
	}
	sessionAttrs = append(sessionAttrs, traceWarnings...)
	sessionAttrs = append(sessionAttrs, parentWarnings...)

	opts := []output.OTELOption{
		output.WithSessionAttributes(sessionAttrs...),
		output.WithEvaluator(evaluator),
		output.WithLogger(logger),
	}
	if traceID.IsValid() && parentID.IsValid() {
		opts = append(opts, output.WithParent(trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     parentID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})))
	}
	return output.NewOTELFormatter(tp.Tracer(otel.TracerName), opts...), tp, nil
}
