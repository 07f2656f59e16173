/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package buffer

import (
	"bytes"
	"testing"

	"gotest.tools/v3/assert"
)

func TestChainLenAndChainLen(t *testing.T) {
	c := New([]byte("hello"))
	c.AppendChain(New([]byte(" world")))

	assert.Equal(t, c.Len(), 5)
	assert.Equal(t, c.ChainLen(), 11)
	assert.DeepEqual(t, c.Bytes(), []byte("hello world"))
}

func TestAdvanceChainCrossesNodes(t *testing.T) {
	c := New([]byte("abc"))
	c.AppendChain(New([]byte("defg")))

	c.AdvanceChain(5)
	assert.DeepEqual(t, c.Bytes(), []byte("fg"))
}

func TestSplitAtNodeBoundary(t *testing.T) {
	c := New([]byte("abc"))
	c.AppendChain(New([]byte("defg")))

	head, tail := c.Split(3)
	assert.DeepEqual(t, head.Bytes(), []byte("abc"))
	assert.DeepEqual(t, tail.Bytes(), []byte("defg"))
}

func TestSplitInsideNodeSharesStorage(t *testing.T) {
	c := New([]byte("hello world"))

	head, tail := c.Split(5)
	assert.DeepEqual(t, head.Bytes(), []byte("hello"))
	assert.DeepEqual(t, tail.Bytes(), []byte(" world"))

	// Zero-copy: both halves must report the same backing storage address
	// as the original allocation.
	assert.Equal(t, len(head.IdentityFingerprint()), 1)
	assert.Equal(t, len(tail.IdentityFingerprint()), 1)
	assert.Equal(t, head.IdentityFingerprint()[0], tail.IdentityFingerprint()[0])
}

func TestSplitThenAppendReassemblesOriginalBytes(t *testing.T) {
	orig := []byte("the quick brown fox")
	c := New(bytes.Clone(orig))

	head, tail := c.Split(9)
	head.AppendChain(tail)
	assert.DeepEqual(t, head.Bytes(), orig)
}

func TestCloneViewIsIndependentOfSubsequentAdvance(t *testing.T) {
	c := New([]byte("payload"))
	clone := c.CloneView()

	c.Advance(4)
	assert.DeepEqual(t, c.Bytes(), []byte("load"))
	assert.DeepEqual(t, clone.Bytes(), []byte("payload"))

	// but the clone shares storage with the original
	assert.Equal(t, clone.IdentityFingerprint()[0], storagePointerOf(t, c))
}

func storagePointerOf(t *testing.T, c *Chain) uintptr {
	t.Helper()
	fp := c.IdentityFingerprint()
	if len(fp) == 0 {
		t.Fatalf("expected at least one node")
	}
	return fp[0]
}

func TestPopDetachesHeadOnly(t *testing.T) {
	c := New([]byte("ab"))
	c.AppendChain(New([]byte("cd")))

	head := c.Pop()
	assert.DeepEqual(t, head.Bytes(), []byte("ab"))
	assert.DeepEqual(t, c.Bytes(), []byte("cd"))
}

func TestPrependChainIsOrderPreserving(t *testing.T) {
	c := New([]byte("world"))
	c.PrependChain(New([]byte("hello ")))
	assert.DeepEqual(t, c.Bytes(), []byte("hello world"))
}

func TestTrimEndShrinksTail(t *testing.T) {
	c := New([]byte("abc"))
	c.AppendChain(New([]byte("defg")))
	c.TrimEnd(2)
	assert.DeepEqual(t, c.Bytes(), []byte("abcde"))
}

func TestEmptyChainOperations(t *testing.T) {
	c := &Chain{}
	assert.Assert(t, c.Empty())
	assert.Equal(t, c.Len(), 0)
	assert.Equal(t, c.ChainLen(), 0)
	c.Advance(0)
	c.AdvanceChain(0)
}
