// Package record describes the binary context-switch records exported by
// the RTEMS target and decodes them from a concatenated byte buffer.
//
// Two wire layouts exist. Both start with the same four 32-bit words
// (misc bitfield, state bitmask, object id, wait object id) and differ in
// the trailing time field:
//
//	LayoutTicks     ticks                  5 words, 20 bytes
//	LayoutAbsolute  seconds, nanoseconds   6 words, 24 bytes
//
// The layout is chosen once per session from the capability flag.
package record

import (
	"encoding/binary"
	"time"
)

// Layout is the wire layout of one record.
type Layout uint8

const (
	// LayoutTicks is the legacy layout carrying a relative tick count.
	LayoutTicks Layout = iota
	// LayoutAbsolute carries an absolute (seconds, nanoseconds) timestamp.
	LayoutAbsolute
)

const (
	prefixWords = 4
	wordSize    = 4
)

func (l Layout) String() string {
	switch l {
	case LayoutTicks:
		return "ticks"
	case LayoutAbsolute:
		return "absolute"
	default:
		return "unknown"
	}
}

// Words returns the number of 32-bit words of one record.
func (l Layout) Words() int {
	if l == LayoutAbsolute {
		return prefixWords + 2
	}
	return prefixWords + 1
}

// Size returns the size of one record in bytes.
func (l Layout) Size() int {
	return l.Words() * wordSize
}

// Chunks returns how many chunk PVs carry the event array for this layout.
func (l Layout) Chunks() int {
	if l == LayoutAbsolute {
		return 5
	}
	return 8
}

// Event is one decoded context-switch record.
// Only the time fields matching Layout are meaningful.
type Event struct {
	Layout      Layout
	Misc        uint32
	State       uint32
	ObjectID    uint32
	WaitID      uint32
	Ticks       uint32
	Seconds     uint32
	Nanoseconds uint32
}

// EventType returns the type tag packed in the low byte of Misc.
func (e Event) EventType() uint8 {
	return uint8(e.Misc & 0xFF)
}

// PriorityCurrent returns the current priority packed in Misc.
func (e Event) PriorityCurrent() uint8 {
	return uint8((e.Misc >> 8) & 0xFF)
}

// PriorityReal returns the real (base) priority packed in Misc.
func (e Event) PriorityReal() uint8 {
	return uint8((e.Misc >> 16) & 0xFF)
}

// AbsoluteTime returns the record timestamp for LayoutAbsolute records.
func (e Event) AbsoluteTime() time.Time {
	return time.Unix(int64(e.Seconds), int64(e.Nanoseconds)).UTC()
}

// PackMisc builds a Misc bitfield from its parts.
func PackMisc(eventType, prioCurrent, prioReal uint8) uint32 {
	return uint32(eventType) | uint32(prioCurrent)<<8 | uint32(prioReal)<<16
}

// Decode interprets buf as consecutive records of stride bytes and returns
// at most count of them, in buffer order. It never reads past buf: a short
// buffer yields fewer events. A stride smaller than the layout size yields
// no events.
func Decode(buf []byte, count, stride int, layout Layout, order binary.ByteOrder) []Event {
	if count <= 0 || stride <= 0 || stride < layout.Size() {
		return nil
	}
	if avail := len(buf) / stride; avail < count {
		count = avail
	}

	events := make([]Event, count)
	for i := range events {
		events[i] = decodeOne(buf[i*stride:i*stride+layout.Size()], layout, order)
	}
	return events
}

func decodeOne(b []byte, layout Layout, order binary.ByteOrder) Event {
	ev := Event{
		Layout:   layout,
		Misc:     order.Uint32(b[0:4]),
		State:    order.Uint32(b[4:8]),
		ObjectID: order.Uint32(b[8:12]),
		WaitID:   order.Uint32(b[12:16]),
	}
	switch layout {
	case LayoutAbsolute:
		ev.Seconds = order.Uint32(b[16:20])
		ev.Nanoseconds = order.Uint32(b[20:24])
	default:
		ev.Ticks = order.Uint32(b[16:20])
	}
	return ev
}

// Encode writes ev in the wire layout of its Layout, padded to stride bytes.
// The simulator and tests use it to build target payloads.
func Encode(ev Event, stride int, order binary.ByteOrder) []byte {
	if stride < ev.Layout.Size() {
		stride = ev.Layout.Size()
	}
	b := make([]byte, stride)
	order.PutUint32(b[0:4], ev.Misc)
	order.PutUint32(b[4:8], ev.State)
	order.PutUint32(b[8:12], ev.ObjectID)
	order.PutUint32(b[12:16], ev.WaitID)
	switch ev.Layout {
	case LayoutAbsolute:
		order.PutUint32(b[16:20], ev.Seconds)
		order.PutUint32(b[20:24], ev.Nanoseconds)
	default:
		order.PutUint32(b[16:20], ev.Ticks)
	}
	return b
}
