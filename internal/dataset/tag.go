package dataset

import (
	"sort"
	"strings"

	"github.com/mrzor/rtems-tracer/internal/record"
)

// Tag identifies one exported attribute. The string form is the PV field
// suffix used by the target.
type Tag string

const (
	TicksPerSecond       Tag = "VALA"
	TimestampSeconds     Tag = "VALB"
	TimestampNanoseconds Tag = "VALC"
	EventCount           Tag = "VALD"
	FirstEventIndex      Tag = "VALE"
	IDList               Tag = "VALR"
	NameList             Tag = "VALS"
	TicksAtTimestamp     Tag = "VALT"
	RecordWords          Tag = "VALU"
)

// MaxChunks is the largest number of chunk PVs any layout uses.
const MaxChunks = 8

var chunkSuffixes = "FGHIJKLM"

// ChunkTag returns the tag of the i-th chunk, 0-based.
func ChunkTag(i int) Tag {
	return Tag("VAL" + chunkSuffixes[i:i+1])
}

// ChunkIndex returns the 0-based chunk index of t, or -1 if t is not a chunk tag.
func (t Tag) ChunkIndex() int {
	s := string(t)
	if len(s) != 4 || !strings.HasPrefix(s, "VAL") {
		return -1
	}
	return strings.IndexByte(chunkSuffixes, s[3])
}

var descriptions = map[Tag]string{
	TicksPerSecond:       "Ticks per second",
	TimestampSeconds:     "Timestamp: Seconds",
	TimestampNanoseconds: "Timestamp: Nanoseconds",
	EventCount:           "Number of events",
	FirstEventIndex:      "Index of first event",
	IDList:               "List of IDs",
	NameList:             "List of names",
	TicksAtTimestamp:     "Ticks at the time of timestamp",
	RecordWords:          "Record size (in uint32_t)",
}

// Description returns a human readable name of the attribute.
func (t Tag) Description() string {
	if i := t.ChunkIndex(); i >= 0 {
		return "Chunk #" + string(rune('1'+i))
	}
	if d, ok := descriptions[t]; ok {
		return d
	}
	return string(t)
}

// TagSet is a set of tags.
type TagSet map[Tag]struct{}

// NewTagSet builds a set from tags.
func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// Equal reports whether both sets hold the same tags.
func (s TagSet) Equal(o TagSet) bool {
	if len(s) != len(o) {
		return false
	}
	for t := range s {
		if !o.Has(t) {
			return false
		}
	}
	return true
}

// Sorted returns the tags in lexical order.
func (s TagSet) Sorted() []Tag {
	out := make([]Tag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequiredTags returns every attribute a dataset needs before it can be
// decoded with the given layout.
func RequiredTags(layout record.Layout) TagSet {
	s := NewTagSet(
		TicksPerSecond,
		TimestampSeconds,
		TimestampNanoseconds,
		EventCount,
		FirstEventIndex,
		IDList,
		NameList,
		TicksAtTimestamp,
		RecordWords,
	)
	for i := 0; i < layout.Chunks(); i++ {
		s[ChunkTag(i)] = struct{}{}
	}
	return s
}
