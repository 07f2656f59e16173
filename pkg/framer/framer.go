/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package framer reassembles the binary protocol's request stream across
// TCP segment boundaries: coalescing short reads, splitting combined
// reads, and preserving leftover bytes between callbacks.
package framer

import (
	"encoding/binary"
	"errors"

	"github.com/simeonmiteff/bincached/pkg/buffer"
)

// HeaderLen is the fixed size of a binary protocol request/response header.
const HeaderLen = 24

// magicRequest is the only magic byte this framer accepts at the start of
// a message. The ASCII protocol is not implemented (spec: reserved hook
// only); any other leading byte is a protocol-fatal framing error.
const magicRequest = 0x80

// ErrUnknownMagic is returned when the first byte of a would-be message is
// not the binary protocol magic. The caller (the session driver) must
// treat this as fatal for the connection, not the process.
var ErrUnknownMagic = errors.New("framer: unrecognized magic byte, binary protocol only")

// Framer accumulates bytes across receive callbacks and yields complete,
// single-message chains. It is not safe for concurrent use: a Framer
// belongs to exactly one session, and the session driver is the only
// caller per spec's single-threaded-per-connection model.
type Framer struct {
	pending *buffer.Chain
}

// New returns a Framer with no pending bytes.
func New() *Framer {
	return &Framer{pending: &buffer.Chain{}}
}

// Feed appends incoming to the framer's pending chain and extracts as many
// complete messages as are now available, in arrival order. Any leftover
// bytes (a partial next message, or none) are retained internally for the
// next Feed call. incoming is consumed; the caller must not reuse it.
func (f *Framer) Feed(incoming *buffer.Chain) ([]*buffer.Chain, error) {
	f.pending.AppendChain(incoming)

	var messages []*buffer.Chain
	for {
		msg, err := f.extractOne()
		if err != nil {
			return messages, err
		}
		if msg == nil {
			return messages, nil
		}
		messages = append(messages, msg)
	}
}

// extractOne implements one pass of the spec's 6-step framing algorithm:
// it returns (nil, nil) when more bytes are needed, a message chain when
// exactly one complete message can be cut from the pending chain, or a
// non-nil error when the leading byte is not a recognized magic.
func (f *Framer) extractOne() (*buffer.Chain, error) {
	if f.pending.ChainLen() < HeaderLen {
		return nil, nil
	}

	header := f.pending.PeekBytes(HeaderLen)
	if header[0] != magicRequest {
		return nil, ErrUnknownMagic
	}
	bodyLen := binary.BigEndian.Uint32(header[8:12])
	messageLen := HeaderLen + int(bodyLen)

	total := f.pending.ChainLen()
	if total < messageLen {
		return nil, nil
	}
	if total == messageLen {
		msg := f.pending
		f.pending = &buffer.Chain{}
		return msg, nil
	}

	msg, rest := f.pending.Split(messageLen)
	f.pending = rest
	return msg, nil
}
