/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package buffer implements a zero-copy, reference-counted buffer chain: a
// linked sequence of segments presenting a virtual contiguous byte
// sequence, used to represent fragmented TCP receive streams and to let
// cached response bodies alias the bytes of the request that produced
// them.
//
// The source this is modeled on links segments into a circular
// doubly-linked ring so that append is O(1) on an intrusive structure. Go
// has no convenient raw intrusive pointers, so this package uses a plain
// singly-linked list with a tracked tail, which gets the same O(1)
// prepend/append splice cost without the self-referential ring (see
// DESIGN.md).
package buffer

import "sync/atomic"

// shared is a refcounted heap allocation. Multiple segments may hold a view
// (offset, length) into the same shared block; the block becomes eligible
// for collection once every segment referencing it is gone, which the Go
// garbage collector handles once the last *shared pointer is dropped (see
// DESIGN.md OQ-1).
type shared struct {
	data []byte
	refs atomic.Int32
}

func newShared(data []byte) *shared {
	s := &shared{data: data}
	s.refs.Store(1)
	return s
}

func (s *shared) retain() *shared {
	s.refs.Add(1)
	return s
}

// segment is one node of a chain: a window [off, off+len) into storage that
// is either uniquely owned by this segment or a view shared with other
// segments, possibly in a different chain.
type segment struct {
	store *shared
	off   int
	len   int
	next  *segment
}

func newUniqueSegment(data []byte) *segment {
	return &segment{store: newShared(data), off: 0, len: len(data)}
}

// view returns a new segment sharing this segment's storage, covering the
// same window. The caller links it into a chain; next is always nil on a
// fresh view.
func (s *segment) view() *segment {
	return &segment{store: s.store.retain(), off: s.off, len: s.len}
}

func (s *segment) bytes() []byte {
	return s.store.data[s.off : s.off+s.len]
}

// advance moves the read cursor forward by n bytes within this segment's
// window. Precondition: 0 <= n <= s.len.
func (s *segment) advance(n int) {
	if n < 0 || n > s.len {
		panic("buffer: advance out of bounds")
	}
	s.off += n
	s.len -= n
}

// trimEnd shrinks the segment's tail view by n bytes. Precondition: 0 <= n <= s.len.
func (s *segment) trimEnd(n int) {
	if n < 0 || n > s.len {
		panic("buffer: trimEnd out of bounds")
	}
	s.len -= n
}

// storageIdentity returns a value that uniquely identifies the underlying
// storage block, used only by the zero-copy test hook.
func (s *segment) storageIdentity() uintptr {
	return uintptr(storagePointer(s.store.data))
}
