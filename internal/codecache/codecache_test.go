package codecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFinalizeLookupRoundTrip(t *testing.T) {
	c := New(4096, 1<<20)
	buf, err := c.Allocate(32)
	require.NoError(t, err)
	copy(buf.Bytes(), []byte("hello world, this is code!"))

	entry := c.Finalize(buf, "f1")
	assert.True(t, entry.Protected())
	assert.Equal(t, Available, entry.State)

	got, ok := c.Lookup("f1")
	require.True(t, ok)
	assert.Same(t, entry, got)
}

func TestInvalidateRemovesFromLookup(t *testing.T) {
	c := New(4096, 1<<20)
	buf, _ := c.Allocate(16)
	c.Finalize(buf, "f1")
	c.Invalidate("f1")
	_, ok := c.Lookup("f1")
	assert.False(t, ok)
}

func TestAllocateGrowsChunksWhenExhausted(t *testing.T) {
	c := New(64, 1<<20)
	buf1, err := c.Allocate(48)
	require.NoError(t, err)
	_ = buf1
	buf2, err := c.Allocate(48)
	require.NoError(t, err)
	_ = buf2
	assert.GreaterOrEqual(t, len(c.chunks), 2)
}

func TestAllocateRejectsOversizedRequest(t *testing.T) {
	c := New(64, 1<<20)
	_, err := c.Allocate(128)
	assert.ErrorIs(t, err, ErrChunkExhausted)
}

func TestEvictFreesLowestScoredEntriesUntilHighWaterMark(t *testing.T) {
	c := New(4096, 48)
	for i := 0; i < 4; i++ {
		buf, err := c.Allocate(16)
		require.NoError(t, err)
		c.Finalize(buf, string(rune('a'+i)))
	}
	stats := c.Stats()
	assert.LessOrEqual(t, stats.TotalSize, stats.HighWaterMark, "finalize evicts down to the high-water mark automatically")
}

func TestExplicitEvictReturnsBytesFreed(t *testing.T) {
	c := New(4096, 1<<20)
	buf, _ := c.Allocate(16)
	c.Finalize(buf, "f1")
	freed := c.Evict(16)
	assert.Equal(t, 16, freed)
	_, ok := c.Lookup("f1")
	assert.False(t, ok)
}
