/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package session

import (
	"fmt"

	"github.com/simeonmiteff/bincached/pkg/buffer"
	"github.com/simeonmiteff/bincached/pkg/protocol"
)

// dispatch decodes one complete message chain and produces its reply, per
// the opcode table in spec §4.3. A nil reply means nothing is sent for
// this message (a quiet suppression); closeAfter signals the session
// must terminate after any reply is flushed (QUIT/QUITQ, or a non-nil
// err for a protocol-fatal condition, spec §7).
func (c *Conn) dispatch(msg *buffer.Chain) (reply *buffer.Chain, closeAfter bool, err error) {
	header := msg.PeekBytes(protocol.HeaderLen)
	hdr, err := protocol.DecodeHeader(header)
	if err != nil {
		return nil, true, fmt.Errorf("session: %w", err)
	}

	if !protocol.IsKnown(hdr.Opcode) {
		return nil, true, fmt.Errorf("session: unsupported opcode 0x%02x, closing session", byte(hdr.Opcode))
	}

	if protocol.IsNotSupported(hdr.Opcode) {
		// REDESIGN FLAG (spec §9): respond NOT_SUPPORTED rather than
		// terminating the session, unlike the source this was distilled
		// from.
		resp := protocol.NewReply(hdr)
		resp.Status = protocol.StatusNotSupported
		return buffer.New(resp.Encode()), false, nil
	}

	switch hdr.Opcode {
	case protocol.OpGet, protocol.OpGetQ, protocol.OpGetK, protocol.OpGetKQ:
		return c.dispatchGet(msg, hdr)
	case protocol.OpSet, protocol.OpSetQ:
		return c.dispatchSet(msg, hdr)
	case protocol.OpQuit, protocol.OpQuitQ:
		closeAfter = true
		if protocol.IsQuiet(hdr.Opcode) {
			return nil, closeAfter, nil
		}
		return buffer.New(protocol.NewReply(hdr).Encode()), closeAfter, nil
	case protocol.OpFlush, protocol.OpFlushQ:
		c.table.Clear()
		if protocol.IsQuiet(hdr.Opcode) {
			return nil, false, nil
		}
		return buffer.New(protocol.NewReply(hdr).Encode()), false, nil
	case protocol.OpNoop:
		return buffer.New(protocol.NewReply(hdr).Encode()), false, nil
	}

	// Unreachable: every opcode IsKnown returns true for is handled above
	// or by the NOT_SUPPORTED branch.
	return nil, true, fmt.Errorf("session: opcode 0x%02x fell through dispatch", byte(hdr.Opcode))
}

// extractKey copies msg's key region out of the chain. A copy (rather
// than a zero-copy view) is used here because the key becomes a Go
// string for the hash table lookup, which requires its own backing bytes
// regardless; keys are bounded to 250 bytes by memcached convention so
// the copy is cheap.
func extractKey(msg *buffer.Chain, hdr protocol.Header) string {
	end := hdr.KeyOffset() + int(hdr.KeyLen)
	return string(msg.PeekBytes(end)[hdr.KeyOffset():])
}

func (c *Conn) dispatchGet(msg *buffer.Chain, hdr protocol.Header) (*buffer.Chain, bool, error) {
	key := extractKey(msg, hdr)
	quiet := protocol.IsQuiet(hdr.Opcode)
	wantKey := hdr.Opcode == protocol.OpGetK || hdr.Opcode == protocol.OpGetKQ

	c.counters.gets.Add(1)

	entry := c.table.Find(key)
	if entry == nil {
		c.counters.getMisses.Add(1)
		if quiet {
			return nil, false, nil
		}
		resp := protocol.NewReply(hdr)
		resp.Status = protocol.StatusKeyNotFound
		return buffer.New(resp.Encode()), false, nil
	}
	c.counters.getHits.Add(1)

	body := entry.Binary() // <extras(4), key, value>, zero-copy clone
	if !wantKey {
		body = stripKey(body, len(key))
	}

	resp := protocol.NewReply(hdr)
	resp.ExtLen = 4
	resp.BodyLen = uint32(body.ChainLen())
	if wantKey {
		resp.KeyLen = hdr.KeyLen
	}

	out := buffer.New(resp.Encode())
	out.AppendChain(body)
	return out, false, nil
}

// stripKey removes the keyLen bytes following the 4-byte extras prefix
// from a materialized GetResponse body, producing the <extras, value>
// layout plain GET/GETQ replies carry (GETK/GETKQ keep the key and skip
// this). Split/AdvanceChain/AppendChain are all zero-copy.
func stripKey(body *buffer.Chain, keyLen int) *buffer.Chain {
	extras, rest := body.Split(4)
	rest.AdvanceChain(keyLen)
	extras.AppendChain(rest)
	return extras
}

func (c *Conn) dispatchSet(msg *buffer.Chain, hdr protocol.Header) (*buffer.Chain, bool, error) {
	key := extractKey(msg, hdr)
	c.table.Set(key, hdr.ExtLen, msg)
	c.counters.sets.Add(1)

	if protocol.IsQuiet(hdr.Opcode) {
		return nil, false, nil
	}
	return buffer.New(protocol.NewReply(hdr).Encode()), false, nil
}
