package correlator

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mrzor/rtems-tracer/internal/dataset"
	"github.com/mrzor/rtems-tracer/internal/output"
	"github.com/mrzor/rtems-tracer/internal/pv"
	"github.com/mrzor/rtems-tracer/internal/record"
	"github.com/mrzor/rtems-tracer/internal/sched"
	"github.com/mrzor/rtems-tracer/internal/threads"
	"github.com/mrzor/rtems-tracer/internal/timesync"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	key      pv.Stamp
	layout   record.Layout
	anchor   time.Time
	anchorK  uint32
	tps      int
	ids      []uint32
	names    []string
	events   []record.Event
	declared int
}

// complete feeds every attribute of f through a manager and returns the
// finished dataset with its decoded events.
func complete(t *testing.T, f fixture) (*dataset.Dataset, []record.Event) {
	t.Helper()

	var buf []byte
	for _, ev := range f.events {
		ev.Layout = f.layout
		buf = append(buf, record.Encode(ev, f.layout.Size(), binary.LittleEndian)...)
	}
	declared := f.declared
	if declared == 0 {
		declared = len(f.events)
	}

	values := map[dataset.Tag]any{
		dataset.TicksPerSecond:       f.tps,
		dataset.TimestampSeconds:     f.anchor.Unix(),
		dataset.TimestampNanoseconds: f.anchor.Nanosecond(),
		dataset.EventCount:           declared,
		dataset.FirstEventIndex:      0,
		dataset.IDList:               f.ids,
		dataset.NameList:             f.names,
		dataset.TicksAtTimestamp:     f.anchorK,
		dataset.RecordWords:          f.layout.Words(),
	}
	for i := 0; i < f.layout.Chunks(); i++ {
		var chunk []byte
		if i == 0 {
			chunk = buf
		}
		values[dataset.ChunkTag(i)] = chunk
	}

	m := dataset.NewManager(dataset.RequiredTags(f.layout))
	var ds *dataset.Dataset
	for tag, v := range values {
		got, err := m.OnValue(tag, f.key, v)
		require.NoError(t, err)
		if got != nil {
			ds = got
		}
	}
	require.NotNil(t, ds)

	decoded := ds.Decode(f.layout, binary.LittleEndian)
	require.Empty(t, decoded.Issues)
	return ds, decoded.Events
}

func tickEvent(id, ticks uint32) record.Event {
	return record.Event{
		Misc:     record.PackMisc(0, 150, 150),
		ObjectID: id,
		Ticks:    ticks,
	}
}

func newCorrelator(t *testing.T, layout record.Layout, emitter output.Emitter) *Correlator {
	return New(timesync.NewClock(layout), sched.DefaultTables(), emitter, zaptest.NewLogger(t))
}

func TestProcess_FirstEventSeedsOnly(t *testing.T) {
	rec := &output.Recorder{}
	c := newCorrelator(t, record.LayoutTicks, rec)

	ds, events := complete(t, fixture{
		key: pv.Stamp{Sec: 1}, layout: record.LayoutTicks,
		anchor: t0, anchorK: 1000, tps: 1000,
		ids: []uint32{5, 7}, names: []string{"TSK5", "TSK7"},
		events: []record.Event{tickEvent(5, 1000), tickEvent(7, 1010)},
	})

	res := c.Process(ds, events)
	assert.Equal(t, Result{Emitted: 1}, res)
	require.Len(t, rec.Transitions, 1)

	tr := rec.Transitions[0]
	assert.Equal(t, uint32(5), tr.FromID)
	assert.Equal(t, uint32(7), tr.ToID)
	assert.Equal(t, "TSK5", tr.FromName)
	assert.Equal(t, "TSK7", tr.ToName)
	assert.True(t, tr.Timestamp.Equal(t0.Add(10*time.Millisecond)), tr.Timestamp)
	assert.Equal(t, "---", tr.Priority.Current)
	assert.Equal(t, "049", tr.Priority.Real)
	assert.Equal(t, "READY", tr.StatusText)
	assert.Equal(t, pv.Stamp{Sec: 1}, tr.Dataset)

	prev, ok := c.Previous()
	assert.True(t, ok)
	assert.Equal(t, uint32(7), prev)
}

func TestProcess_ConsoleLine(t *testing.T) {
	buf := &lineBuffer{}
	c := newCorrelator(t, record.LayoutTicks, output.NewConsole(buf, false))

	ds, events := complete(t, fixture{
		key: pv.Stamp{Sec: 1}, layout: record.LayoutTicks,
		anchor: t0, anchorK: 1000, tps: 1000,
		ids: []uint32{5, 7}, names: []string{"TSK5", "TSK7"},
		events: []record.Event{tickEvent(5, 1000), tickEvent(7, 1001)},
	})
	c.Process(ds, events)

	require.Len(t, buf.lines, 1)
	assert.Equal(t,
		"2024-01-01T00:00:00.001000: TSK5                 -> TSK7                 ---/049 (READY)\n",
		buf.lines[0])
}

type lineBuffer struct {
	lines []string
}

func (b *lineBuffer) Write(p []byte) (int, error) {
	b.lines = append(b.lines, string(p))
	return len(p), nil
}

func TestProcess_StraddlesDatasets(t *testing.T) {
	rec := &output.Recorder{}
	c := newCorrelator(t, record.LayoutTicks, rec)

	first, events := complete(t, fixture{
		key: pv.Stamp{Sec: 1}, layout: record.LayoutTicks,
		anchor: t0, anchorK: 1000, tps: 100,
		ids: []uint32{5}, names: []string{"TSK5"},
		events: []record.Event{tickEvent(5, 1000)},
	})
	assert.Equal(t, Result{}, c.Process(first, events))
	assert.Empty(t, rec.Transitions)

	later := t0.Add(time.Minute)
	second, events := complete(t, fixture{
		key: pv.Stamp{Sec: 2}, layout: record.LayoutTicks,
		anchor: later, anchorK: 7000, tps: 100,
		ids: []uint32{9}, names: []string{"TSK9"},
		events: []record.Event{tickEvent(9, 7002), tickEvent(threads.IdleID, 7005)},
	})
	assert.Equal(t, Result{Emitted: 2}, c.Process(second, events))

	require.Len(t, rec.Transitions, 2)
	straddle := rec.Transitions[0]
	assert.Equal(t, uint32(5), straddle.FromID)
	assert.Equal(t, "0x00000005", straddle.FromName, "names come from the current dataset")
	assert.Equal(t, "TSK9", straddle.ToName)
	assert.True(t, straddle.Timestamp.Equal(later.Add(20*time.Millisecond)))

	assert.Equal(t, "TSK9", rec.Transitions[1].FromName)
	assert.Equal(t, "IDLE", rec.Transitions[1].ToName)
}

func TestProcess_AbsoluteLayout(t *testing.T) {
	rec := &output.Recorder{}
	c := newCorrelator(t, record.LayoutAbsolute, rec)

	waiting := record.Event{
		Misc:        record.PackMisc(1, 140, 150),
		State:       0x208,
		ObjectID:    7,
		WaitID:      0x1a010003,
		Seconds:     uint32(t0.Unix()) + 5,
		Nanoseconds: 250000,
	}
	ds, events := complete(t, fixture{
		key: pv.Stamp{Sec: 3}, layout: record.LayoutAbsolute,
		anchor: t0, tps: 100,
		ids: []uint32{5, 7}, names: []string{"TSK5", "UNKNOWN"},
		events: []record.Event{{ObjectID: 5, Seconds: uint32(t0.Unix())}, waiting},
	})
	c.Process(ds, events)

	require.Len(t, rec.Transitions, 1)
	tr := rec.Transitions[0]
	assert.True(t, tr.Timestamp.Equal(t0.Add(5*time.Second+250*time.Microsecond)))
	assert.Equal(t, "0x00000007", tr.ToName)
	assert.Equal(t, "059", tr.Priority.Current)
	assert.Equal(t, "DELAYING, WAITING FOR SEMAPHORE, 0x1a010003", tr.StateText())
	assert.Equal(t, uint8(1), tr.EventType)
}

func TestProcess_SubTick(t *testing.T) {
	rec := &output.Recorder{}
	c := newCorrelator(t, record.LayoutTicks, rec)

	ds, events := complete(t, fixture{
		key: pv.Stamp{Sec: 1}, layout: record.LayoutTicks,
		anchor: t0, anchorK: 0, tps: 1000,
		events: []record.Event{tickEvent(1, 5), tickEvent(2, 5), tickEvent(3, 5), tickEvent(4, 6)},
	})
	c.Process(ds, events)

	require.Len(t, rec.Transitions, 3)
	assert.Equal(t, 0, rec.Transitions[0].SubTick)
	assert.Equal(t, 1, rec.Transitions[1].SubTick)
	assert.Equal(t, 0, rec.Transitions[2].SubTick)
}

type flakyEmitter struct {
	output.Recorder
	calls int
}

func (f *flakyEmitter) Emit(t output.Transition) error {
	f.calls++
	if f.calls == 1 {
		return errors.New("sink unavailable")
	}
	return f.Recorder.Emit(t)
}

func TestProcess_EmitErrorsDoNotStopTheWalk(t *testing.T) {
	emitter := &flakyEmitter{}
	c := newCorrelator(t, record.LayoutTicks, emitter)

	ds, events := complete(t, fixture{
		key: pv.Stamp{Sec: 1}, layout: record.LayoutTicks,
		anchor: t0, anchorK: 0, tps: 1000,
		events: []record.Event{tickEvent(1, 1), tickEvent(2, 2), tickEvent(3, 3)},
	})
	res := c.Process(ds, events)

	assert.Equal(t, Result{Emitted: 1, Failed: 1}, res)
	require.Len(t, emitter.Transitions, 1)
	assert.Equal(t, uint32(2), emitter.Transitions[0].FromID, "previous advances past the failed emission")
}

func TestProcess_EmptyDataset(t *testing.T) {
	rec := &output.Recorder{}
	c := newCorrelator(t, record.LayoutTicks, rec)

	ds, events := complete(t, fixture{
		key: pv.Stamp{Sec: 1}, layout: record.LayoutTicks,
		anchor: t0, tps: 1000,
	})
	assert.Equal(t, Result{}, c.Process(ds, events))
	_, ok := c.Previous()
	assert.False(t, ok)
}
