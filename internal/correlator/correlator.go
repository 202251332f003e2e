// Package correlator turns decoded records into thread transitions.
//
// Records are context switches: each names the thread switched in. The
// correlator remembers the previous thread across datasets and, for every
// record after the first one of the session, emits the transition from the
// previous thread to the record's thread.
package correlator

import (
	"go.uber.org/zap"

	"github.com/mrzor/rtems-tracer/internal/dataset"
	"github.com/mrzor/rtems-tracer/internal/output"
	"github.com/mrzor/rtems-tracer/internal/record"
	"github.com/mrzor/rtems-tracer/internal/sched"
	"github.com/mrzor/rtems-tracer/internal/threads"
	"github.com/mrzor/rtems-tracer/internal/timesync"
)

// Result summarizes one Process call.
type Result struct {
	Emitted int
	Failed  int
}

// Correlator holds the correlation state of one session.
// It is not safe for concurrent use.
type Correlator struct {
	clock   timesync.Clock
	tables  sched.Tables
	emitter output.Emitter
	logger  *zap.Logger

	previous uint32
	seeded   bool
}

// New creates a correlator with no previous thread.
func New(clock timesync.Clock, tables sched.Tables, emitter output.Emitter, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{clock: clock, tables: tables, emitter: emitter, logger: logger}
}

// Previous returns the thread of the last processed record.
func (c *Correlator) Previous() (uint32, bool) {
	return c.previous, c.seeded
}

// Process walks the events decoded from ds. Emitter failures are logged and
// counted; they never stop the walk.
func (c *Correlator) Process(ds *dataset.Dataset, events []record.Event) Result {
	c.clock.Anchor(timesync.Anchor{
		Timestamp:      ds.Timestamp(),
		Ticks:          ds.TicksAtTimestamp(),
		TicksPerSecond: ds.TicksPerSecond(),
	})
	names := threads.Build(ds.IDs(), ds.Names())

	var res Result
	for _, ev := range events {
		if !c.seeded {
			c.previous = ev.ObjectID
			c.seeded = true
			continue
		}

		t := c.transition(ds, names, ev)
		if err := c.emitter.Emit(t); err != nil {
			res.Failed++
			c.logger.Warn("emit transition failed",
				zap.Stringer("dataset", ds.Key()),
				zap.String("from", t.FromName),
				zap.String("to", t.ToName),
				zap.Error(err))
		} else {
			res.Emitted++
		}
		c.previous = ev.ObjectID
	}
	return res
}

func (c *Correlator) transition(ds *dataset.Dataset, names *threads.Names, ev record.Event) output.Transition {
	ts := c.clock.Timestamp(ev)
	return output.Transition{
		Timestamp:   ts,
		FromID:      c.previous,
		ToID:        ev.ObjectID,
		FromName:    names.Lookup(c.previous),
		ToName:      names.Lookup(ev.ObjectID),
		PrioCurrent: ev.PriorityCurrent(),
		PrioReal:    ev.PriorityReal(),
		Priority:    c.tables.Priorities(ev.PriorityCurrent(), ev.PriorityReal()),
		State:       ev.State,
		StatusText:  c.tables.StatusText(ev.State),
		WaitID:      ev.WaitID,
		EventType:   ev.EventType(),
		SubTick:     c.clock.SubTick(),
		Dataset:     ds.Key(),
	}
}
