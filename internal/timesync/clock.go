package timesync

import (
	"math"
	"time"

	"github.com/mrzor/rtems-tracer/internal/record"
)

// Anchor is the per-dataset time reference published by the target.
type Anchor struct {
	Timestamp      time.Time
	Ticks          uint32
	TicksPerSecond float64
}

// Clock turns decoded events into wall-clock timestamps.
// Implementations are not safe for concurrent use.
type Clock interface {
	// Anchor installs the time reference of the dataset about to be walked.
	Anchor(a Anchor)
	// Timestamp returns the wall-clock time of ev.
	Timestamp(ev record.Event) time.Time
	// SubTick returns how many events before the last one shared its raw time.
	SubTick() int
}

// NewClock returns the clock matching layout.
func NewClock(layout record.Layout) Clock {
	if layout == record.LayoutAbsolute {
		return &AbsoluteClock{}
	}
	return &TickClock{}
}

// TickClock places tick-stamped events relative to the dataset anchor.
type TickClock struct {
	origin   time.Time
	base     uint32
	tick     float64 // seconds per tick
	last     uint32
	seen     bool
	subTicks int
}

// Anchor implements Clock. A non-positive tick rate keeps the previous
// tick duration.
func (c *TickClock) Anchor(a Anchor) {
	c.origin = a.Timestamp
	c.base = a.Ticks
	if a.TicksPerSecond > 0 {
		c.tick = 1 / a.TicksPerSecond
	}
}

// Tick returns the current duration of one tick.
func (c *TickClock) Tick() time.Duration {
	return time.Duration(math.Round(c.tick * float64(time.Second)))
}

// Timestamp implements Clock.
func (c *TickClock) Timestamp(ev record.Event) time.Time {
	c.count(ev.Ticks)
	delta := int64(ev.Ticks) - int64(c.base)
	offset := time.Duration(math.Round(float64(delta) * c.tick * float64(time.Second)))
	return c.origin.Add(offset)
}

func (c *TickClock) count(ticks uint32) {
	if c.seen && ticks == c.last {
		c.subTicks++
	} else {
		c.subTicks = 0
	}
	c.last = ticks
	c.seen = true
}

// SubTick implements Clock.
func (c *TickClock) SubTick() int {
	return c.subTicks
}

// AbsoluteClock reads the timestamp carried by each event.
type AbsoluteClock struct {
	last     time.Time
	subTicks int
}

// Anchor implements Clock. Absolute events need no anchor.
func (c *AbsoluteClock) Anchor(Anchor) {}

// Timestamp implements Clock.
func (c *AbsoluteClock) Timestamp(ev record.Event) time.Time {
	ts := ev.AbsoluteTime()
	if ts.Equal(c.last) {
		c.subTicks++
	} else {
		c.subTicks = 0
	}
	c.last = ts
	return ts
}

// SubTick implements Clock.
func (c *AbsoluteClock) SubTick() int {
	return c.subTicks
}
