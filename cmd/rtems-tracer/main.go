// rtems-tracer prints the thread context switches of an RTEMS target and
// optionally exports them as OpenTelemetry spans.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrzor/rtems-tracer/internal/config"
	"github.com/mrzor/rtems-tracer/internal/logging"
	"github.com/mrzor/rtems-tracer/internal/metrics"
	"github.com/mrzor/rtems-tracer/internal/pv/natspv"
	"github.com/mrzor/rtems-tracer/internal/sched"
	"github.com/mrzor/rtems-tracer/internal/session"
)

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const stopTimeout = 5 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flagValues{}
	cmd := &cobra.Command{
		Use:   "rtems-tracer [flags] <top>",
		Short: "Trace thread context switches of an RTEMS target",
		Long: `rtems-tracer enables the trace export of an RTEMS target, collects the
exported datasets over a NATS PV gateway and prints one line per context
switch. Spans can also be exported over OTLP.

Every flag can be set with an RTEMS_TRACER_* environment variable or in the
YAML file given with --config. Flags win over the file, the file wins over
the environment.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	bindFlags(cmd, f)
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	}()

	logger.Info("starting rtems-tracer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("prefix", cfg.Prefix))

	order, err := cfg.Order()
	if err != nil {
		return err
	}

	sessionID := uuid.New().String()

	emitter, closeEmitter, err := buildEmitter(cfg, sessionID, logger)
	if err != nil {
		return err
	}
	defer closeEmitter()

	client, err := natspv.Connect(cfg.NATSURL,
		natspv.WithLogger(logger),
		natspv.WithName("rtems-tracer "+cfg.Prefix))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.NATSURL, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("error closing transport", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	s := session.New(client, session.Config{
		ID:          sessionID,
		Prefix:      cfg.Prefix,
		Order:       order,
		Tables:      sched.Tables{States: sched.States, RTEMSPriorities: cfg.RTEMSPriorities},
		DatasetTTL:  cfg.DatasetTTL,
		QueueSize:   cfg.QueueSize,
		RetiredKeys: cfg.RetiredKeys,
	}, emitter, logger, m)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr, reg, logger)
		})
	}
	g.Go(func() error {
		if err := s.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		logger.Info("shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	})
	return g.Wait()
}
