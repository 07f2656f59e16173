/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package cache

import (
	"sync/atomic"

	"github.com/simeonmiteff/bincached/pkg/buffer"
	"github.com/simeonmiteff/bincached/pkg/protocol"
)

// GetResponse is the per-entry cached body (spec §4.5): one atomic owning
// reference to a shared chain already laid out as <extras(4 zero bytes),
// key, value>, ready to be cloned and sent back verbatim in reply to a
// GET/GETK/GETQ/GETKQ.
type GetResponse struct {
	binaryResponse atomic.Pointer[buffer.Chain]
}

// zeroExtras is the 4-byte extras prefix every cached response carries;
// the original SET's flags/expiry extras are discarded here (spec's
// stated Non-goal baseline — see SPEC_FULL.md REDESIGN FLAGS, OQ-3). Every
// Materialize call wraps this same backing array in its own *shared
// node (independently refcounted), never mutating it, so sharing the
// array across every cache entry is safe.
var zeroExtras = [4]byte{}

// Materialize clones request (the full SET message chain, positioned at
// byte 0) into the cached response layout: advances past the 24-byte
// header plus the request's own extras (extLen bytes of flags/expiry,
// discarded per spec's Non-goal baseline) and replaces them with 4 zero
// bytes, then leaves key+value untouched, sharing storage with the
// original request. No byte of the key or value is copied.
func Materialize(request *buffer.Chain, extLen byte) *buffer.Chain {
	view := request.CloneView()
	view.AdvanceChain(protocol.HeaderLen + int(extLen))

	out := buffer.New(zeroExtras[:])
	out.AppendChain(view)
	return out
}

// NewGetResponse constructs a GetResponse whose stored chain is already
// Materialize'd, for the table's initial-insert path.
func NewGetResponse(materialized *buffer.Chain) *GetResponse {
	g := &GetResponse{}
	g.binaryResponse.Store(materialized)
	return g
}

// Binary atomically loads the stored chain and returns an independent
// shared-view clone. The returned chain's lifetime does not depend on any
// subsequent Swap: a concurrent SET may swap the stored pointer out from
// under a reader, but the reader already holds its own clone.
func (g *GetResponse) Binary() *buffer.Chain {
	return g.binaryResponse.Load().CloneView()
}

// Swap atomically installs newChain as the stored reference and returns
// the chain it displaced. The caller must retire the displaced chain
// through the grace period rather than dropping it immediately, in case a
// reader observed the old pointer via Binary but has not yet finished
// cloning from it (see pkg/grace).
func (g *GetResponse) Swap(newChain *buffer.Chain) (old *buffer.Chain) {
	return g.binaryResponse.Swap(newChain)
}
