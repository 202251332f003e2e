package timesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/rtems-tracer/internal/record"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func tickEvent(ticks uint32) record.Event {
	return record.Event{Layout: record.LayoutTicks, Ticks: ticks}
}

func TestNewClock(t *testing.T) {
	assert.IsType(t, &TickClock{}, NewClock(record.LayoutTicks))
	assert.IsType(t, &AbsoluteClock{}, NewClock(record.LayoutAbsolute))
}

func TestTickClock_Timestamp(t *testing.T) {
	c := &TickClock{}
	c.Anchor(Anchor{Timestamp: epoch, Ticks: 1000, TicksPerSecond: 1000})

	tests := []struct {
		name  string
		ticks uint32
		want  time.Time
	}{
		{"at anchor", 1000, epoch},
		{"one tick later", 1001, epoch.Add(time.Millisecond)},
		{"one second later", 2000, epoch.Add(time.Second)},
		{"before anchor", 990, epoch.Add(-10 * time.Millisecond)},
		{"tick zero", 0, epoch.Add(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Timestamp(tickEvent(tt.ticks))
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestTickClock_AnchorFormula(t *testing.T) {
	rates := []float64{1, 60, 100, 1000, 10000}
	anchors := []uint32{0, 12345, 1 << 31}
	offsets := []int64{-500, -1, 0, 1, 7, 999, 123456}

	for _, rate := range rates {
		for _, k0 := range anchors {
			c := &TickClock{}
			c.Anchor(Anchor{Timestamp: epoch, Ticks: k0, TicksPerSecond: rate})
			for _, off := range offsets {
				ticks := int64(k0) + off
				if ticks < 0 {
					continue
				}
				want := epoch.Add(time.Duration(float64(off) / rate * float64(time.Second)))
				got := c.Timestamp(tickEvent(uint32(ticks)))
				require.WithinDuration(t, want, got, time.Microsecond,
					"rate=%v k0=%d offset=%d", rate, k0, off)
			}
		}
	}
}

func TestTickClock_TickNotRoundedToMicroseconds(t *testing.T) {
	c := &TickClock{}
	c.Anchor(Anchor{Timestamp: epoch, Ticks: 0, TicksPerSecond: 3})

	assert.Equal(t, 333333333*time.Nanosecond, c.Tick())
	assert.Equal(t, epoch.Add(time.Second), c.Timestamp(tickEvent(3)))
	assert.Equal(t, epoch.Add(3333333333*time.Nanosecond), c.Timestamp(tickEvent(10)))
}

func TestTickClock_ReAnchor(t *testing.T) {
	c := &TickClock{}
	c.Anchor(Anchor{Timestamp: epoch, Ticks: 1000, TicksPerSecond: 100})
	assert.Equal(t, 10*time.Millisecond, c.Tick())

	next := epoch.Add(time.Minute)
	c.Anchor(Anchor{Timestamp: next, Ticks: 7000, TicksPerSecond: 0})
	assert.Equal(t, 10*time.Millisecond, c.Tick(), "non-positive rate keeps the previous tick")

	got := c.Timestamp(tickEvent(7010))
	assert.True(t, got.Equal(next.Add(100*time.Millisecond)))

	c.Anchor(Anchor{Timestamp: next, Ticks: 7000, TicksPerSecond: -5})
	assert.Equal(t, 10*time.Millisecond, c.Tick())
}

func TestTickClock_SubTick(t *testing.T) {
	c := &TickClock{}
	c.Anchor(Anchor{Timestamp: epoch, Ticks: 0, TicksPerSecond: 1000})

	var got []int
	for _, ticks := range []uint32{5, 5, 5, 6, 6, 7} {
		c.Timestamp(tickEvent(ticks))
		got = append(got, c.SubTick())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 0}, got)
}

func TestAbsoluteClock(t *testing.T) {
	c := &AbsoluteClock{}
	c.Anchor(Anchor{Timestamp: epoch, Ticks: 10, TicksPerSecond: 100})

	ev := record.Event{Layout: record.LayoutAbsolute, Seconds: 1704067200, Nanoseconds: 1500}
	got := c.Timestamp(ev)
	assert.True(t, got.Equal(epoch.Add(1500*time.Nanosecond)))
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, c.SubTick())

	c.Timestamp(ev)
	assert.Equal(t, 1, c.SubTick())

	ev.Nanoseconds++
	c.Timestamp(ev)
	assert.Equal(t, 0, c.SubTick())
}
