package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrzor/rtems-tracer/internal/record"
)

func TestChunkTags(t *testing.T) {
	assert.Equal(t, Tag("VALF"), ChunkTag(0))
	assert.Equal(t, Tag("VALM"), ChunkTag(7))
	assert.Equal(t, 0, Tag("VALF").ChunkIndex())
	assert.Equal(t, 7, Tag("VALM").ChunkIndex())
	assert.Equal(t, -1, EventCount.ChunkIndex())
	assert.Equal(t, -1, Tag("FOO").ChunkIndex())
}

func TestRequiredTags(t *testing.T) {
	ticks := RequiredTags(record.LayoutTicks)
	assert.Len(t, ticks, 17)
	assert.True(t, ticks.Has(ChunkTag(7)))

	abs := RequiredTags(record.LayoutAbsolute)
	assert.Len(t, abs, 14)
	assert.True(t, abs.Has(ChunkTag(4)))
	assert.False(t, abs.Has(ChunkTag(5)))

	assert.False(t, ticks.Equal(abs))
	assert.True(t, abs.Equal(RequiredTags(record.LayoutAbsolute)))
}

func TestTagDescription(t *testing.T) {
	assert.Equal(t, "Chunk #1", ChunkTag(0).Description())
	assert.Equal(t, "Chunk #8", ChunkTag(7).Description())
	assert.Equal(t, "Number of events", EventCount.Description())
	assert.Equal(t, "VALZ", Tag("VALZ").Description())
}

func TestTagSetSorted(t *testing.T) {
	s := NewTagSet(RecordWords, TicksPerSecond, EventCount)
	assert.Equal(t, []Tag{TicksPerSecond, EventCount, RecordWords}, s.Sorted())
}
