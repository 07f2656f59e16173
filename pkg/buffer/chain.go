/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package buffer

// Chain is an ordered sequence of segments presenting a virtual contiguous
// byte sequence. The zero value is an empty chain.
type Chain struct {
	head *segment
	tail *segment // == head when there is exactly one node; nil when empty
}

// New wraps data as a single-segment chain that uniquely owns it.
func New(data []byte) *Chain {
	if len(data) == 0 {
		return &Chain{}
	}
	s := newUniqueSegment(data)
	return &Chain{head: s, tail: s}
}

// Empty reports whether the chain has no live bytes.
func (c *Chain) Empty() bool {
	return c.head == nil
}

// Len returns the live byte count of the head node only.
func (c *Chain) Len() int {
	if c.head == nil {
		return 0
	}
	return c.head.len
}

// ChainLen returns the sum of live bytes across every node in the chain.
func (c *Chain) ChainLen() int {
	total := 0
	for s := c.head; s != nil; s = s.next {
		total += s.len
	}
	return total
}

// Advance moves the read cursor of the head node forward by n bytes.
// Precondition: 0 <= n <= c.Len().
func (c *Chain) Advance(n int) {
	if c.head == nil {
		if n != 0 {
			panic("buffer: advance on empty chain")
		}
		return
	}
	c.head.advance(n)
	if c.head.len == 0 {
		if c.head == c.tail {
			c.head, c.tail = nil, nil
		} else {
			c.head = c.head.next
		}
	}
}

// AdvanceChain advances across node boundaries as necessary, discarding
// fully-consumed head nodes. Precondition: 0 <= n <= c.ChainLen().
func (c *Chain) AdvanceChain(n int) {
	for n > 0 {
		if c.head == nil {
			panic("buffer: advanceChain past end of chain")
		}
		if n < c.head.len {
			c.head.advance(n)
			return
		}
		n -= c.head.len
		if c.head == c.tail {
			c.head, c.tail = nil, nil
			if n != 0 {
				panic("buffer: advanceChain past end of chain")
			}
			return
		}
		c.head = c.head.next
	}
}

// TrimEnd shrinks the tail node's view by n bytes. Precondition: 0 <= n <=
// the tail node's length (trimming across a node boundary is not
// supported). A tail node trimmed to zero length is dropped from the chain.
func (c *Chain) TrimEnd(n int) {
	if c.tail == nil {
		if n != 0 {
			panic("buffer: trimEnd on empty chain")
		}
		return
	}
	c.tail.trimEnd(n)
	if c.tail.len == 0 && c.head == c.tail {
		c.head, c.tail = nil, nil
		return
	}
	if c.tail.len == 0 && c.head != c.tail {
		// Re-walk to find the new tail; chains are short-lived per-message
		// so this is cheap and keeps Chain from needing prev pointers.
		s := c.head
		for s.next != c.tail {
			s = s.next
		}
		s.next = nil
		c.tail = s
	}
}

// PrependChain splices other in front of c in O(1); other is consumed and
// must not be used again by the caller.
func (c *Chain) PrependChain(other *Chain) {
	if other == nil || other.head == nil {
		return
	}
	other.tail.next = c.head
	c.head = other.head
	if c.tail == nil {
		c.tail = other.tail
	}
	other.head, other.tail = nil, nil
}

// AppendChain splices other onto the end of c in O(1); other is consumed
// and must not be used again by the caller.
func (c *Chain) AppendChain(other *Chain) {
	if other == nil || other.head == nil {
		return
	}
	if c.head == nil {
		c.head, c.tail = other.head, other.tail
	} else {
		c.tail.next = other.head
		c.tail = other.tail
	}
	other.head, other.tail = nil, nil
}

// Pop detaches just the head node and returns it as an independent
// one-node chain; c is left holding the remainder.
func (c *Chain) Pop() *Chain {
	if c.head == nil {
		return &Chain{}
	}
	s := c.head
	c.head = s.next
	if c.head == nil {
		c.tail = nil
	}
	s.next = nil
	return &Chain{head: s, tail: s}
}

// CloneView produces an independent chain referencing the same underlying
// storage as c, incrementing each node's storage refcount. The returned
// chain's lifetime is independent of subsequent mutation of c (advancing
// or swapping c does not affect the clone's windows, since each node is a
// distinct *segment sharing only the backing []byte).
func (c *Chain) CloneView() *Chain {
	clone := &Chain{}
	for s := c.head; s != nil; s = s.next {
		v := s.view()
		if clone.head == nil {
			clone.head = v
		} else {
			clone.tail.next = v
		}
		clone.tail = v
	}
	return clone
}

// Split divides c at byte offset n into two new chains: the first n bytes
// (head) and the remainder (tail); c itself is consumed. If n lands on a
// node boundary the split is a pure pointer relink (no allocation besides
// the two small Chain headers). If n falls inside a node, that one node is
// cloned into two shared views over the same storage — no byte is ever
// copied, matching the framer's invariant.
func (c *Chain) Split(n int) (head, tail *Chain) {
	if n == 0 {
		return &Chain{}, c
	}
	remaining := n
	var prev *segment
	for s := c.head; s != nil; s = s.next {
		switch {
		case remaining == s.len:
			head = &Chain{head: c.head, tail: s}
			if s.next == nil {
				tail = &Chain{}
			} else {
				tail = &Chain{head: s.next, tail: c.tail}
			}
			s.next = nil
			return head, tail
		case remaining < s.len:
			first := s.view()
			first.trimEnd(s.len - remaining)
			second := s.view()
			second.advance(remaining)

			if prev == nil {
				head = &Chain{head: first, tail: first}
			} else {
				head = &Chain{head: c.head, tail: first}
				prevInHead := c.head
				for prevInHead.next != s {
					prevInHead = prevInHead.next
				}
				prevInHead.next = first
			}
			second.next = s.next
			if second.next == nil {
				tail = &Chain{head: second, tail: second}
			} else {
				tail = &Chain{head: second, tail: c.tail}
			}
			return head, tail
		default:
			remaining -= s.len
			prev = s
		}
	}
	panic("buffer: split offset exceeds chain length")
}

// PeekBytes copies and returns the first n bytes of the chain without
// consuming them. Precondition: n <= c.ChainLen(). Used only for small,
// fixed-size lookahead (the 24-byte header) where a copy is cheap and
// avoids disturbing node boundaries that Split would otherwise need to
// reconstruct.
func (c *Chain) PeekBytes(n int) []byte {
	out := make([]byte, 0, n)
	for s := c.head; s != nil && len(out) < n; s = s.next {
		b := s.bytes()
		need := n - len(out)
		if need < len(b) {
			b = b[:need]
		}
		out = append(out, b...)
	}
	return out
}

// Bytes materializes the chain's virtual byte sequence into a single
// freshly-allocated slice. Used by the encoder for small, fixed-size
// regions (the 24-byte response header) and by tests; never used on the
// hot path for cached value bodies, which are sent node-by-node instead
// (see Nodes).
func (c *Chain) Bytes() []byte {
	out := make([]byte, 0, c.ChainLen())
	for s := c.head; s != nil; s = s.next {
		out = append(out, s.bytes()...)
	}
	return out
}

// Nodes returns the live byte slices of each node, in order, without
// copying. Callers must not retain the slices past the next mutation of c.
func (c *Chain) Nodes() [][]byte {
	var out [][]byte
	for s := c.head; s != nil; s = s.next {
		out = append(out, s.bytes())
	}
	return out
}

// IdentityFingerprint returns the storage addresses backing each node, in
// order. It exists purely as a test hook (spec testable property: GET
// responses must share storage with the originating SET, not copy it).
func (c *Chain) IdentityFingerprint() []uintptr {
	var out []uintptr
	for s := c.head; s != nil; s = s.next {
		out = append(out, s.storageIdentity())
	}
	return out
}
