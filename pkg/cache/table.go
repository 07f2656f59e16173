/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package cache implements the concurrent keyed store of cached response
// bodies (spec §4.4/§4.5): lock-free reads, writes serialized by a short
// critical section, retirement of displaced values deferred until no
// in-flight reader can still observe them.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/simeonmiteff/bincached/pkg/buffer"
	"github.com/simeonmiteff/bincached/pkg/grace"
)

// numBuckets is fixed at construction per spec §4.4.
const numBuckets = 8192

// entry is one node of a bucket's singly-linked list.
type entry struct {
	key   string
	value *GetResponse
	next  atomic.Pointer[entry]
}

// bucket holds the head of one collision chain. Reads load head
// lock-free; writes go through Table.mu.
type bucket struct {
	head atomic.Pointer[entry]
}

// Table is the process-wide cache: a fixed-bucket hash table from key to
// GetResponse. The zero value is not usable; construct with New.
type Table struct {
	buckets [numBuckets]bucket
	mu      sync.Mutex // guards all buckets during insertLocked/Clear
	grace   *grace.Period

	entries    atomic.Int64
	flushCount atomic.Uint64
}

// New constructs an empty Table. grace provides the deferred-retirement
// primitive used to safely reclaim displaced entries (see pkg/grace).
func New(g *grace.Period) *Table {
	return &Table{grace: g}
}

func bucketIndex(key string) int {
	return int(xxhash.Sum64String(key) % numBuckets)
}

// Find performs a lock-free lookup. The returned *GetResponse, if non-nil,
// remains valid for the duration of the caller's current cooperative unit
// of work: a concurrent Clear may unlink its entry from the bucket, but its
// destruction (including any memory it alone references) is deferred past
// the current grace period, so a reader that already holds the pointer
// may keep dereferencing it.
func (t *Table) Find(key string) *GetResponse {
	b := &t.buckets[bucketIndex(key)]
	for e := b.head.Load(); e != nil; e = e.next.Load() {
		if e.key == key {
			return e.value
		}
	}
	return nil
}

// insertLocked publishes a new entry at the head of its bucket. Caller
// must hold t.mu.
func (t *Table) insertLocked(key string, value *GetResponse) {
	b := &t.buckets[bucketIndex(key)]
	e := &entry{key: key, value: value}
	e.next.Store(b.head.Load())
	b.head.Store(e)
	t.entries.Add(1)
}

// Set implements the SET double-check path from spec §4.4's closing
// paragraph: an optimistic lock-free Find first; on a hit, the existing
// entry's value is swapped in place (no table mutation, no lock taken —
// there is no DELETE in this protocol, so only a concurrent Clear can
// unlink the entry Find just located; a swap that lands on an entry Clear
// has already unlinked is not observable afterwards). On a miss, Set
// acquires the lock, re-checks, and either inserts a new entry (still absent) or falls
// through to the swap path (another writer's SET for the same key won the
// race between the optimistic Find and the lock acquisition).
func (t *Table) Set(key string, extLen byte, requestChain *buffer.Chain) {
	materialized := Materialize(requestChain, extLen)

	if existing := t.Find(key); existing != nil {
		t.swapAndRetire(existing, materialized)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing := t.Find(key); existing != nil {
		t.swapAndRetire(existing, materialized)
		return
	}
	t.insertLocked(key, NewGetResponse(materialized))
}

func (t *Table) swapAndRetire(existing *GetResponse, materialized *buffer.Chain) {
	old := existing.Swap(materialized)
	if old != nil && t.grace != nil {
		t.grace.Defer(func() { _ = old })
	}
}

// Clear empties the table (FLUSH). Per spec §8 property 6, no key set
// before Clear returns is observable via Find to any caller whose request
// began after Clear's return.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.buckets {
		t.buckets[i].head.Store(nil)
	}
	t.entries.Store(0)
	t.flushCount.Add(1)
}

// TableStats is a point-in-time snapshot used by pkg/metrics.
type TableStats struct {
	Entries    int64
	FlushCount uint64
}

// Stats returns a snapshot of table-level counters.
func (t *Table) Stats() TableStats {
	return TableStats{
		Entries:    t.entries.Load(),
		FlushCount: t.flushCount.Load(),
	}
}
