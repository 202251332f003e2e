package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mrzor/rtems-tracer/internal/control"
	"github.com/mrzor/rtems-tracer/internal/correlator"
	"github.com/mrzor/rtems-tracer/internal/dataset"
	"github.com/mrzor/rtems-tracer/internal/metrics"
	"github.com/mrzor/rtems-tracer/internal/output"
	"github.com/mrzor/rtems-tracer/internal/pv"
	"github.com/mrzor/rtems-tracer/internal/record"
	"github.com/mrzor/rtems-tracer/internal/sched"
	"github.com/mrzor/rtems-tracer/internal/timesync"
)

// ErrNotStarted is returned by operations that need a started session.
var ErrNotStarted = errors.New("session not started")

// Config holds the session parameters.
type Config struct {
	// ID identifies the session in logs and spans. Generated when empty.
	ID string
	// Prefix is the PV prefix of the stats record.
	Prefix string
	// Order is the byte order of the event records.
	Order binary.ByteOrder
	// Tables decodes states and priorities.
	Tables sched.Tables
	// DatasetTTL drops incomplete datasets not updated for that long.
	// Zero keeps them forever.
	DatasetTTL time.Duration
	// ExpireInterval is how often expiry runs. Defaults to DatasetTTL/2.
	ExpireInterval time.Duration
	// QueueSize bounds the number of updates waiting for the loop.
	QueueSize int
	// RetiredKeys bounds how many processed keys are remembered.
	RetiredKeys int
}

func (c Config) withDefaults() Config {
	if c.Order == nil {
		c.Order = binary.LittleEndian
	}
	if c.Tables.States == nil {
		c.Tables.States = sched.States
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.ExpireInterval <= 0 && c.DatasetTTL > 0 {
		c.ExpireInterval = c.DatasetTTL / 2
	}
	return c
}

type item struct {
	update pv.Update
	ack    chan struct{}
}

// Session owns the dataset map and correlation state of one target.
type Session struct {
	id      string
	client  pv.Client
	cfg     Config
	emitter output.Emitter
	logger  *zap.Logger
	metrics *metrics.Metrics
	control *control.Channel
	stale   *rate.Limiter

	// mu serializes Process and expiry.
	mu         sync.Mutex
	capability control.Capability
	layout     record.Layout
	manager    *dataset.Manager
	correlator *correlator.Correlator
	channels   map[string]dataset.Tag

	subs     []pv.Subscription
	queue    chan item
	done     chan struct{}
	loopDone chan struct{}

	stateMu sync.Mutex
	started bool
	stopped bool
	stopErr error
}

// New creates a session. m may be nil.
func New(client pv.Client, cfg Config, emitter output.Emitter, logger *zap.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	logger = logger.With(zap.String("session_id", id), zap.String("prefix", cfg.Prefix))

	return &Session{
		id:       id,
		client:   client,
		cfg:      cfg,
		emitter:  emitter,
		logger:   logger,
		metrics:  m,
		control:  control.New(client, cfg.Prefix, logger),
		stale:    rate.NewLimiter(rate.Every(time.Second), 5),
		queue:    make(chan item, cfg.QueueSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Layout returns the record layout selected at Start.
func (s *Session) Layout() record.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

// Capability returns the capability word read at Start.
func (s *Session) Capability() control.Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capability
}

// Start queries the target, subscribes to every export attribute of the
// selected layout, starts the processing loop and enables the export.
func (s *Session) Start(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.started {
		return fmt.Errorf("session %s already started", s.id)
	}

	capability, err := s.control.QueryInfo(ctx)
	if err != nil {
		return err
	}
	s.prepare(capability)

	for _, tag := range s.manager.Required().Sorted() {
		channel := pv.ExportChannel(s.cfg.Prefix, string(tag))
		sub, err := s.client.Subscribe(ctx, channel, s.enqueue)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("subscribed to export attributes",
		zap.Int("channels", len(s.subs)),
		zap.Stringer("layout", s.layout))

	go s.loop()
	s.started = true

	s.control.SetEnabled(ctx, true)
	return nil
}

// prepare fixes the layout and builds the per-session state.
func (s *Session) prepare(capability control.Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capability = capability
	s.layout = capability.Layout()

	var opts []dataset.Option
	if s.cfg.RetiredKeys > 0 {
		opts = append(opts, dataset.WithRetiredLimit(s.cfg.RetiredKeys))
	}
	s.manager = dataset.NewManager(dataset.RequiredTags(s.layout), opts...)
	s.correlator = correlator.New(timesync.NewClock(s.layout), s.cfg.Tables, s.emitter, s.logger)

	s.channels = make(map[string]dataset.Tag)
	for tag := range s.manager.Required() {
		s.channels[pv.ExportChannel(s.cfg.Prefix, string(tag))] = tag
	}
}

// enqueue is the transport callback. It blocks while the queue is full and
// drops the update once the session is stopping.
func (s *Session) enqueue(u pv.Update) {
	s.metrics.UpdateReceived()
	select {
	case s.queue <- item{update: u}:
	case <-s.done:
		s.metrics.UpdateDiscarded(metrics.ReasonStopped)
	}
}

func (s *Session) loop() {
	defer close(s.loopDone)

	var expire <-chan time.Time
	if s.cfg.DatasetTTL > 0 {
		ticker := time.NewTicker(s.cfg.ExpireInterval)
		defer ticker.Stop()
		expire = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case it := <-s.queue:
			s.metrics.SetQueueDepth(len(s.queue))
			if it.ack != nil {
				close(it.ack)
				continue
			}
			s.Process(it.update)
		case <-expire:
			s.Expire()
		}
	}
}

// Flush waits until every update queued before the call is processed.
func (s *Session) Flush(ctx context.Context) error {
	if !s.isRunning() {
		return ErrNotStarted
	}

	ack := make(chan struct{})
	select {
	case s.queue <- item{ack: ack}:
	case <-s.done:
		return ErrNotStarted
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-s.loopDone:
		return ErrNotStarted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) isRunning() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.started && !s.stopped
}

// Process applies one update synchronously. The loop calls it for every
// queued update; it is exported for callers that drive the session
// themselves. Updates received before Start are discarded.
func (s *Session) Process(u pv.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manager == nil {
		s.metrics.UpdateDiscarded(metrics.ReasonStopped)
		return
	}
	if u.Status != 0 {
		s.metrics.UpdateDiscarded(metrics.ReasonStatus)
		s.logger.Debug("ignoring update with transport status",
			zap.String("channel", u.Channel),
			zap.Int("status", u.Status))
		return
	}
	tag, ok := s.channels[u.Channel]
	if !ok {
		s.metrics.UpdateDiscarded(metrics.ReasonUnknownChannel)
		s.logger.Debug("ignoring update for unknown channel", zap.String("channel", u.Channel))
		return
	}

	ds, err := s.manager.OnValue(tag, u.Stamp, u.Value)
	if err != nil {
		s.metrics.UpdateDiscarded(metrics.ReasonStale)
		if errors.Is(err, dataset.ErrStaleDataset) {
			s.metrics.DatasetInvalid()
		}
		if s.stale.Allow() {
			s.logger.Warn("setting dataset as invalid",
				zap.Stringer("dataset", u.Stamp),
				zap.String("attribute", tag.Description()),
				zap.Error(err))
		}
		return
	}
	s.metrics.SetPending(s.manager.Pending())
	if ds == nil {
		return
	}
	s.dump(ds)
}

// dump decodes a complete dataset and correlates its events.
func (s *Session) dump(ds *dataset.Dataset) {
	s.logger.Info("dumping dataset",
		zap.Stringer("dataset", ds.Key()),
		zap.Time("reported_start", ds.Timestamp()),
		zap.Int("events", ds.EventCount()))

	decoded := ds.Decode(s.layout, s.cfg.Order)
	for _, issue := range decoded.Issues {
		s.logger.Warn("dataset decode issue",
			zap.Stringer("dataset", ds.Key()),
			zap.String("issue", issue))
	}
	s.metrics.DatasetCompleted(len(decoded.Events), len(decoded.Issues))

	res := s.correlator.Process(ds, decoded.Events)
	s.metrics.TransitionsEmitted(res.Emitted, res.Failed)
	s.logger.Debug("dataset processed",
		zap.Stringer("dataset", ds.Key()),
		zap.Int("decoded", len(decoded.Events)),
		zap.Int("emitted", res.Emitted),
		zap.Int("failed", res.Failed))
}

// Expire drops incomplete datasets older than the dataset TTL.
func (s *Session) Expire() []dataset.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manager == nil {
		return nil
	}
	keys := s.manager.Expire(s.cfg.DatasetTTL)
	if len(keys) > 0 {
		s.logger.Warn("expired incomplete datasets", zap.Int("count", len(keys)))
		s.metrics.DatasetsExpired(len(keys))
		s.metrics.SetPending(s.manager.Pending())
	}
	return keys
}

// Stop disables the export, unsubscribes and stops the loop. It is safe to
// call more than once; later calls return the first result.
func (s *Session) Stop(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if !s.started || s.stopped {
		return s.stopErr
	}
	s.stopped = true

	s.control.SetEnabled(ctx, false)
	err := s.unsubscribe()
	close(s.done)

	select {
	case <-s.loopDone:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("wait for processing loop: %w", ctx.Err()))
	}

	s.stopErr = err
	s.logger.Info("session stopped")
	return err
}

func (s *Session) unsubscribe() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}
