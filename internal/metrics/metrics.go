// Package metrics exposes Prometheus collectors for the tracing pipeline.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "rtems_tracer"

// Reasons an update is discarded.
const (
	ReasonStatus         = "status"
	ReasonUnknownChannel = "unknown_channel"
	ReasonStale          = "stale"
	ReasonStopped        = "stopped"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	updatesReceived    prometheus.Counter
	updatesDiscarded   *prometheus.CounterVec
	datasetsCompleted  prometheus.Counter
	datasetsInvalid    prometheus.Counter
	datasetsExpired    prometheus.Counter
	datasetsPending    prometheus.Gauge
	eventsDecoded      prometheus.Counter
	decodeIssues       prometheus.Counter
	transitionsEmitted prometheus.Counter
	emitErrors         prometheus.Counter
	queueDepth         prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		updatesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_received_total",
			Help:      "PV updates delivered by the transport.",
		}),
		updatesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_discarded_total",
			Help:      "PV updates dropped before reaching a dataset.",
		}, []string{"reason"}),
		datasetsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_completed_total",
			Help:      "Datasets that received every required attribute.",
		}),
		datasetsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_invalid_total",
			Help:      "Updates addressed to an already retired dataset key.",
		}),
		datasetsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_expired_total",
			Help:      "Incomplete datasets dropped after the dataset TTL.",
		}),
		datasetsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datasets_pending",
			Help:      "Datasets waiting for attributes.",
		}),
		eventsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_decoded_total",
			Help:      "Context switch records decoded.",
		}),
		decodeIssues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_issues_total",
			Help:      "Datasets decoded with truncation or size issues.",
		}),
		transitionsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_emitted_total",
			Help:      "Thread transitions handed to the emitter.",
		}),
		emitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emit_errors_total",
			Help:      "Transitions the emitter failed to write.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Updates waiting in the processing queue.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.updatesReceived, m.updatesDiscarded, m.datasetsCompleted,
		m.datasetsInvalid, m.datasetsExpired, m.datasetsPending,
		m.eventsDecoded, m.decodeIssues, m.transitionsEmitted,
		m.emitErrors, m.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// UpdateReceived counts one transport callback.
func (m *Metrics) UpdateReceived() {
	if m != nil {
		m.updatesReceived.Inc()
	}
}

// UpdateDiscarded counts one dropped update.
func (m *Metrics) UpdateDiscarded(reason string) {
	if m != nil {
		m.updatesDiscarded.WithLabelValues(reason).Inc()
	}
}

// DatasetCompleted counts one complete dataset with its decoded events.
func (m *Metrics) DatasetCompleted(events int, issues int) {
	if m == nil {
		return
	}
	m.datasetsCompleted.Inc()
	m.eventsDecoded.Add(float64(events))
	if issues > 0 {
		m.decodeIssues.Inc()
	}
}

// DatasetInvalid counts one stale-key update.
func (m *Metrics) DatasetInvalid() {
	if m != nil {
		m.datasetsInvalid.Inc()
	}
}

// DatasetsExpired counts expired datasets.
func (m *Metrics) DatasetsExpired(n int) {
	if m != nil && n > 0 {
		m.datasetsExpired.Add(float64(n))
	}
}

// SetPending records the number of pending datasets.
func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.datasetsPending.Set(float64(n))
	}
}

// SetQueueDepth records the processing queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

// TransitionsEmitted counts emitted transitions and emitter failures.
func (m *Metrics) TransitionsEmitted(emitted, failed int) {
	if m == nil {
		return
	}
	m.transitionsEmitted.Add(float64(emitted))
	m.emitErrors.Add(float64(failed))
}

// Serve exposes gatherer on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
