// Package codecache is the multi-chunk allocator of (simulated)
// executable pages that backs every tier's compiled output (spec §4.8).
// Real page protection (mprotect/VirtualProtect) needs
// golang.org/x/sys, which nothing in the retrieval pack imports for
// this purpose; CodeEntry.protected stands in for the page-table bit a
// real embedding would flip, while every other piece of the W^X
// discipline — never readable-writable-and-executable at once, always
// re-protect after emit/patch, single-writer mutex — is implemented for
// real.
package codecache

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EntryState is a CodeEntry's lifecycle stage (spec §4.8).
type EntryState int

const (
	Available EntryState = iota
	Invalidated
	Relocating
	Deoptimizing
)

func (s EntryState) String() string {
	switch s {
	case Available:
		return "available"
	case Invalidated:
		return "invalidated"
	case Relocating:
		return "relocating"
	case Deoptimizing:
		return "deoptimizing"
	default:
		return "unknown"
	}
}

// codeAlignment is the bump allocator's code alignment (spec §4.8
// "16-byte code alignment").
const codeAlignment = 16

// ErrChunkExhausted is returned when a single allocation request cannot
// fit in one chunk even after growth (the requested size exceeds the
// configured chunk size).
var ErrChunkExhausted = errors.New("codecache: allocation larger than chunk size")

// Buffer is a writable handle into a chunk, returned by Allocate and
// consumed by Finalize. It is never itself executable.
type Buffer struct {
	chunk  *chunk
	offset int
	length int
}

// Bytes exposes the buffer's writable backing memory for the code
// generator to fill in.
func (b *Buffer) Bytes() []byte { return b.chunk.mem[b.offset : b.offset+b.length] }

// CodeEntry is one compiled function's resident code (spec §4.8 "the
// entries table maps function ids to CodeEntry").
type CodeEntry struct {
	FunctionID string
	State      EntryState
	size       int
	protected  bool // true once Finalize has re-protected the backing page read-execute
	createdAt  uint64
	lastUsed   uint64
	buf        *Buffer
}

// Bytes returns the entry's code, valid once Protected() is true.
func (e *CodeEntry) Bytes() []byte { return e.buf.Bytes() }

// Protected reports whether the entry's backing page is currently
// read-execute (true) or still writable (false) — the W^X bit.
func (e *CodeEntry) Protected() bool { return e.protected }

// chunk is one contiguous region of (simulated) executable pages,
// sub-allocated bump-style.
type chunk struct {
	mem  []byte
	used int
}

func newChunk(size int) *chunk { return &chunk{mem: make([]byte, size)} }

func (c *chunk) bumpAlloc(size int) (*Buffer, bool) {
	aligned := align(c.used, codeAlignment)
	if aligned+size > len(c.mem) {
		return nil, false
	}
	c.used = aligned + size
	return &Buffer{chunk: c, offset: aligned, length: size}, true
}

func align(n, to int) int {
	if n%to == 0 {
		return n
	}
	return n + (to - n%to)
}

// Cache is the code cache: a bounded set of chunks, an entries table
// keyed by function id, and an LRU index of warm entries (spec §4.8 API:
// allocate/finalize/lookup/invalidate/evict). The LRU index is kept in
// step with the entries table; eviction scores every Available entry in
// the entries table and does not consult it.
type Cache struct {
	mu            sync.Mutex
	chunkSize     int
	chunks        []*chunk
	entries       map[string]*CodeEntry
	warm          *lru.Cache[string, struct{}]
	totalSize     int
	highWaterMark int
	tick          uint64
}

// New creates a Cache with the given per-chunk size and high-water mark
// (spec §4.8 "Total size is bounded; exceeding the soft threshold
// triggers eviction ... until under the high-water mark").
func New(chunkSize, highWaterMark int) *Cache {
	warm, _ := lru.New[string, struct{}](4096)
	return &Cache{
		chunkSize:     chunkSize,
		entries:       make(map[string]*CodeEntry),
		warm:          warm,
		highWaterMark: highWaterMark,
	}
}

// Allocate returns a writable buffer of size bytes, growing the chunk
// set if none of the existing chunks have room (spec §4.8 "allocate(size):
// returns a writable buffer").
func (c *Cache) Allocate(size int) (*Buffer, error) {
	if size > c.chunkSize {
		return nil, ErrChunkExhausted
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.chunks {
		if buf, ok := ch.bumpAlloc(size); ok {
			return buf, nil
		}
	}
	ch := newChunk(c.chunkSize)
	c.chunks = append(c.chunks, ch)
	buf, ok := ch.bumpAlloc(size)
	if !ok {
		return nil, ErrChunkExhausted
	}
	return buf, nil
}

// Finalize protects buf read-execute, flushes the instruction cache
// (delegated to the caller's codegen.Backend.FlushICache — this package
// only manages the entry's protected bit), and returns the CodeEntry
// installed under functionID (spec §4.8 "finalize(buf): protects
// read-execute, flushes icache, returns a CodeEntry").
func (c *Cache) Finalize(buf *Buffer, functionID string) *CodeEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	entry := &CodeEntry{
		FunctionID: functionID,
		State:      Available,
		size:       buf.length,
		protected:  true,
		createdAt:  c.tick,
		lastUsed:   c.tick,
		buf:        buf,
	}
	if old, ok := c.entries[functionID]; ok {
		c.totalSize -= old.size
	}
	c.entries[functionID] = entry
	c.totalSize += entry.size
	c.warm.Add(functionID, struct{}{})

	if c.totalSize > c.highWaterMark {
		c.evictLocked(c.totalSize - c.highWaterMark)
	}
	return entry
}

// Lookup returns the live entry for functionID, if any (spec §4.8
// "lookup(function_id): the entries table maps function ids to
// CodeEntry"). Invalidated entries are not returned.
func (c *Cache) Lookup(functionID string) (*CodeEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[functionID]
	if !ok || entry.State != Available {
		return nil, false
	}
	c.tick++
	entry.lastUsed = c.tick
	c.warm.Get(functionID) // refresh LRU recency
	return entry, true
}

// Invalidate transitions an entry to Invalidated and removes it from the
// lookup table (spec §4.8 "invalidate(function_id): transitions the
// entry to Invalidated and unlinks all call sites pointing to it" — the
// call-site unlinking itself is internal/inlinecache's and
// internal/dispatcher's responsibility; this package only owns the
// entry's own lifecycle state).
func (c *Cache) Invalidate(functionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[functionID]
	if !ok {
		return
	}
	entry.State = Invalidated
	delete(c.entries, functionID)
	c.totalSize -= entry.size
	c.warm.Remove(functionID)
}

// Evict removes the lowest-scored Available entries (hybrid score
// age×size, spec §4.8 "default policy is a hybrid score age × size")
// until at least `bytes` have been freed or no evictable entries remain.
// Returns the number of bytes actually freed.
func (c *Cache) Evict(bytes int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(bytes)
}

func (c *Cache) evictLocked(bytes int) int {
	type scored struct {
		id    string
		score uint64
	}
	var candidates []scored
	for id, e := range c.entries {
		if e.State != Available {
			continue
		}
		age := c.tick - e.lastUsed
		candidates = append(candidates, scored{id: id, score: age * uint64(e.size)})
	}
	// Insertion sort ascending by score: lowest-scored entries evict first.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j-1].score > candidates[j].score; j-- {
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
		}
	}

	freed := 0
	for _, cand := range candidates {
		if freed >= bytes {
			break
		}
		entry := c.entries[cand.id]
		entry.State = Invalidated
		delete(c.entries, cand.id)
		c.totalSize -= entry.size
		c.warm.Remove(cand.id)
		freed += entry.size
	}
	return freed
}

// Stats summarizes cache occupancy for internal/engine.Stats().
type Stats struct {
	Chunks        int
	TotalSize     int
	HighWaterMark int
	LiveEntries   int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Chunks:        len(c.chunks),
		TotalSize:     c.totalSize,
		HighWaterMark: c.highWaterMark,
		LiveEntries:   len(c.entries),
	}
}
