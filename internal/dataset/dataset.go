package dataset

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mrzor/rtems-tracer/internal/pv"
	"github.com/mrzor/rtems-tracer/internal/record"
)

// ChunkCapacity is the maximum payload of one chunk PV, in bytes.
const ChunkCapacity = 16000

// Key identifies a dataset: the transport timestamp shared by all of its
// attribute updates.
type Key = pv.Stamp

// Dataset holds the attribute values received for one export.
type Dataset struct {
	key      Key
	values   map[Tag]any
	received TagSet
	required TagSet
	created  time.Time
	updated  time.Time
}

func newDataset(key Key, required TagSet, now time.Time) *Dataset {
	return &Dataset{
		key:      key,
		values:   make(map[Tag]any, len(required)),
		received: make(TagSet, len(required)),
		required: required,
		created:  now,
		updated:  now,
	}
}

// Key returns the dataset key.
func (d *Dataset) Key() Key {
	return d.key
}

// Set stores the value of one attribute and marks it received.
func (d *Dataset) Set(tag Tag, value any) {
	d.values[tag] = value
	d.received[tag] = struct{}{}
}

// Value returns the raw value stored for tag.
func (d *Dataset) Value(tag Tag) (any, bool) {
	v, ok := d.values[tag]
	return v, ok
}

// Done reports whether every required attribute has been received.
func (d *Dataset) Done() bool {
	return d.received.Equal(d.required)
}

// Missing returns the required tags not received yet.
func (d *Dataset) Missing() []Tag {
	var out []Tag
	for _, t := range d.required.Sorted() {
		if !d.received.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (d *Dataset) int64Value(tag Tag) int64 {
	v, ok := d.values[tag]
	if !ok {
		return 0
	}
	n, err := pv.AsInt64(v)
	if err != nil {
		return 0
	}
	return n
}

// TicksPerSecond returns the target tick rate.
func (d *Dataset) TicksPerSecond() float64 {
	v, ok := d.values[TicksPerSecond]
	if !ok {
		return 0
	}
	f, err := pv.AsFloat64(v)
	if err != nil {
		return 0
	}
	return f
}

// Timestamp returns the absolute time the target reports for the export.
func (d *Dataset) Timestamp() time.Time {
	return time.Unix(d.int64Value(TimestampSeconds), d.int64Value(TimestampNanoseconds)).UTC()
}

// TicksAtTimestamp returns the tick counter value matching Timestamp.
func (d *Dataset) TicksAtTimestamp() uint32 {
	return uint32(d.int64Value(TicksAtTimestamp)) //nolint:gosec // tick counter is a 32-bit word
}

// EventCount returns the declared number of events.
func (d *Dataset) EventCount() int {
	return int(d.int64Value(EventCount))
}

// FirstEventIndex returns the index of the first event in the target's ring.
func (d *Dataset) FirstEventIndex() int {
	return int(d.int64Value(FirstEventIndex))
}

// RecordSize returns the declared record size in bytes.
func (d *Dataset) RecordSize() int {
	return int(d.int64Value(RecordWords)) * 4
}

// IDs returns the thread id list.
func (d *Dataset) IDs() []uint32 {
	ids, err := pv.AsUint32s(d.values[IDList])
	if err != nil {
		return nil
	}
	return ids
}

// Names returns the thread name list, parallel to IDs.
func (d *Dataset) Names() []string {
	names, err := pv.AsStrings(d.values[NameList])
	if err != nil {
		return nil
	}
	return names
}

// Chunk returns the payload of the i-th chunk as bytes, capped at
// ChunkCapacity. Word arrays are serialized with order. Strings are base64,
// the JSON form of a byte array; an undecodable string yields no payload.
func (d *Dataset) Chunk(i int, order binary.ByteOrder) []byte {
	v, ok := d.values[ChunkTag(i)]
	if !ok {
		return nil
	}

	var b []byte
	switch x := v.(type) {
	case []byte:
		b = x
	case string:
		decoded, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil
		}
		b = decoded
	default:
		words, err := pv.AsUint32s(v)
		if err != nil {
			return nil
		}
		if n := ChunkCapacity / 4; len(words) > n {
			words = words[:n]
		}
		b = make([]byte, len(words)*4)
		for j, w := range words {
			order.PutUint32(b[j*4:], w)
		}
	}
	if len(b) > ChunkCapacity {
		b = b[:ChunkCapacity]
	}
	return b
}

// Assemble concatenates chunk payloads in chunk order until the declared
// EventCount*RecordSize bytes are gathered. The last consumed chunk is
// truncated to the remaining need and later chunks contribute nothing. The
// result is shorter than declared when the chunks hold less data.
// The declared count is clamped to the received data before sizing.
func (d *Dataset) Assemble(order binary.ByteOrder) []byte {
	count, stride := d.EventCount(), d.RecordSize()
	if count <= 0 || stride <= 0 {
		return nil
	}

	var chunks [][]byte
	avail := 0
	for i := 0; i < MaxChunks; i++ {
		if !d.received.Has(ChunkTag(i)) {
			break
		}
		chunk := d.Chunk(i, order)
		chunks = append(chunks, chunk)
		avail += len(chunk)
	}

	need := avail
	if count <= avail/stride {
		need = count * stride
	}
	if need == 0 {
		return nil
	}

	buf := make([]byte, 0, need)
	for _, chunk := range chunks {
		if len(buf) >= need {
			break
		}
		if rem := need - len(buf); len(chunk) > rem {
			chunk = chunk[:rem]
		}
		buf = append(buf, chunk...)
	}
	return buf
}

// Decoded is the result of decoding a complete dataset.
type Decoded struct {
	Events   []record.Event
	Declared int
	Issues   []string
}

// Decode assembles the chunk payloads and decodes them as records of the
// given layout. Malformed datasets never fail: they decode to fewer events
// and the shortfall is reported in Issues.
func (d *Dataset) Decode(layout record.Layout, order binary.ByteOrder) Decoded {
	result := Decoded{
		Declared: d.EventCount(),
		Issues:   []string{},
	}

	stride := d.RecordSize()
	if stride < layout.Size() {
		if result.Declared > 0 {
			result.Issues = append(result.Issues, fmt.Sprintf("record size %d bytes is smaller than %s layout (%d bytes)", stride, layout, layout.Size()))
		}
		return result
	}

	buf := d.Assemble(order)
	result.Events = record.Decode(buf, result.Declared, stride, layout, order)

	if len(result.Events) < result.Declared {
		result.Issues = append(result.Issues, fmt.Sprintf("data truncated: declared %d events, decoded %d", result.Declared, len(result.Events)))
	}
	return result
}
