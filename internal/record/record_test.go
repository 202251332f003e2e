package record

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(events []Event, stride int) []byte {
	var buf []byte
	for _, ev := range events {
		buf = append(buf, Encode(ev, stride, binary.LittleEndian)...)
	}
	return buf
}

func TestLayout(t *testing.T) {
	assert.Equal(t, 20, LayoutTicks.Size())
	assert.Equal(t, 24, LayoutAbsolute.Size())
	assert.Equal(t, 8, LayoutTicks.Chunks())
	assert.Equal(t, 5, LayoutAbsolute.Chunks())
	assert.Equal(t, "ticks", LayoutTicks.String())
	assert.Equal(t, "absolute", LayoutAbsolute.String())
	assert.Equal(t, "unknown", Layout(9).String())
}

func TestEvent_PackedFields(t *testing.T) {
	ev := Event{Misc: 0x00C8_6403}
	assert.Equal(t, uint8(0x03), ev.EventType())
	assert.Equal(t, uint8(0x64), ev.PriorityCurrent())
	assert.Equal(t, uint8(0xC8), ev.PriorityReal())

	assert.Equal(t, uint32(0x00C86403), PackMisc(0x03, 0x64, 0xC8))
}

func TestDecode_TicksLayout(t *testing.T) {
	in := []Event{
		{Layout: LayoutTicks, Misc: PackMisc(1, 10, 20), State: 0x8, ObjectID: 5, WaitID: 0, Ticks: 1000},
		{Layout: LayoutTicks, Misc: PackMisc(1, 11, 21), State: 0, ObjectID: 7, WaitID: 0x1a010002, Ticks: 1001},
	}
	buf := encodeAll(in, LayoutTicks.Size())

	got := Decode(buf, 2, LayoutTicks.Size(), LayoutTicks, binary.LittleEndian)
	assert.Equal(t, in, got)
}

func TestDecode_AbsoluteLayout(t *testing.T) {
	in := []Event{
		{Layout: LayoutAbsolute, ObjectID: 1, Seconds: 1704067200, Nanoseconds: 500},
		{Layout: LayoutAbsolute, ObjectID: 2, Seconds: 1704067201, Nanoseconds: 0},
	}
	buf := encodeAll(in, LayoutAbsolute.Size())

	got := Decode(buf, 2, LayoutAbsolute.Size(), LayoutAbsolute, binary.LittleEndian)
	require.Len(t, got, 2)
	assert.Equal(t, in, got)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 500, time.UTC), got[0].AbsoluteTime())
}

func TestDecode_BigEndian(t *testing.T) {
	ev := Event{Layout: LayoutTicks, ObjectID: 0x09010001, Ticks: 42}
	buf := Encode(ev, 20, binary.BigEndian)
	assert.Equal(t, []byte{0x09, 0x01, 0x00, 0x01}, buf[8:12])

	got := Decode(buf, 1, 20, LayoutTicks, binary.BigEndian)
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
}

func TestDecode_Count(t *testing.T) {
	in := make([]Event, 5)
	for i := range in {
		in[i] = Event{Layout: LayoutTicks, ObjectID: uint32(i + 1), Ticks: uint32(i)}
	}
	buf := encodeAll(in, 20)

	tests := []struct {
		name   string
		buf    []byte
		count  int
		stride int
		want   int
	}{
		{"declared fewer than available", buf, 3, 20, 3},
		{"declared equals available", buf, 5, 20, 5},
		{"declared more than available", buf, 9, 20, 5},
		{"partial trailing record ignored", buf[:len(buf)-1], 5, 20, 4},
		{"zero count", buf, 0, 20, 0},
		{"negative count", buf, -1, 20, 0},
		{"stride below layout size", buf, 5, 16, 0},
		{"zero stride", buf, 5, 0, 0},
		{"empty buffer", nil, 5, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.buf, tt.count, tt.stride, LayoutTicks, binary.LittleEndian)
			require.Len(t, got, tt.want)
			for i, ev := range got {
				assert.Equal(t, uint32(i+1), ev.ObjectID, "record order must follow buffer order")
			}
		})
	}
}

func TestDecode_WiderStride(t *testing.T) {
	in := []Event{
		{Layout: LayoutTicks, ObjectID: 1, Ticks: 10},
		{Layout: LayoutTicks, ObjectID: 2, Ticks: 11},
	}
	buf := encodeAll(in, 24)

	got := Decode(buf, 2, 24, LayoutTicks, binary.LittleEndian)
	assert.Equal(t, in, got)
}
