/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package protocol

import (
	"encoding/binary"
	"testing"

	"gotest.tools/v3/assert"
)

func TestDecodeHeaderSET(t *testing.T) {
	msg := make([]byte, 24+3+11)
	msg[0] = magicRequest
	msg[1] = byte(OpSet)
	binary.BigEndian.PutUint16(msg[2:4], 3)
	binary.BigEndian.PutUint32(msg[8:12], 14)
	copy(msg[24:], "foo")
	copy(msg[27:], "hello world")

	h, err := DecodeHeader(msg)
	assert.NilError(t, err)
	assert.Equal(t, h.Opcode, OpSet)
	assert.Equal(t, h.KeyLen, uint16(3))
	assert.Equal(t, h.BodyLen, uint32(14))
	assert.Equal(t, h.KeyOffset(), 24)
	assert.Equal(t, h.ValueOffset(), 27)
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 10))
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestEncodeGetHitResponse(t *testing.T) {
	req := Header{Opcode: OpGet, Opaque: 42}
	resp := NewReply(req)
	resp.ExtLen = 4
	resp.BodyLen = 15 // 4 extras + 11-byte value

	b := resp.Encode()
	assert.Equal(t, len(b), 24)
	assert.Equal(t, b[0], byte(magicResponse))
	assert.Equal(t, b[1], byte(OpGet))
	assert.Equal(t, b[4], byte(4))
	assert.Equal(t, binary.BigEndian.Uint16(b[6:8]), uint16(StatusSuccess))
	assert.Equal(t, binary.BigEndian.Uint32(b[8:12]), uint32(15))
	assert.Equal(t, binary.BigEndian.Uint32(b[12:16]), uint32(42))
}

func TestEncodeGetKMissResponse(t *testing.T) {
	req := Header{Opcode: OpGetK}
	resp := NewReply(req)
	resp.Status = StatusKeyNotFound

	b := resp.Encode()
	assert.Equal(t, b[0], byte(magicResponse))
	assert.Equal(t, b[1], byte(OpGetK))
	assert.Equal(t, binary.BigEndian.Uint16(b[6:8]), uint16(StatusKeyNotFound))
	assert.Equal(t, binary.BigEndian.Uint32(b[8:12]), uint32(0))
}

func TestQuietHasZeroMagic(t *testing.T) {
	assert.Equal(t, Quiet().Magic, byte(0))
}

func TestOpcodeClassification(t *testing.T) {
	assert.Assert(t, IsQuiet(OpGetQ))
	assert.Assert(t, IsQuiet(OpSetQ))
	assert.Assert(t, !IsQuiet(OpGet))

	assert.Assert(t, IsNotSupported(OpAdd))
	assert.Assert(t, IsNotSupported(OpDelete))
	assert.Assert(t, !IsNotSupported(OpGet))

	assert.Assert(t, IsKnown(OpGet))
	assert.Assert(t, IsKnown(OpAdd))
	assert.Assert(t, !IsKnown(Opcode(0x99)))
}
