/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package protocol decodes binary protocol request headers and encodes
// response headers (spec §4.3), matching the Couchbase/memcached binary
// wire layout: magic[0], opcode[1], keylen[2:4] BE, extlen[4], datatype[5],
// reserved[6:8], bodylen[8:12] BE, opaque[12:16], cas[16:24].
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	magicRequest  = 0x80
	magicResponse = 0x81
)

// HeaderLen is the fixed size of a binary protocol request/response
// header (spec §4.3). Mirrored by pkg/framer.HeaderLen, which frames
// messages without depending on this package.
const HeaderLen = 24

// Header is a decoded view over a 24-byte binary protocol request header.
type Header struct {
	Magic    byte
	Opcode   Opcode
	KeyLen   uint16
	ExtLen   byte
	DataType byte
	BodyLen  uint32
	Opaque   uint32
	CAS      uint64
}

// ErrShortHeader is returned by DecodeHeader when fewer than 24 bytes are
// given; callers (the session driver) should never see this in practice
// because the framer only ever hands over complete messages.
var ErrShortHeader = fmt.Errorf("protocol: header shorter than %d bytes", 24)

// DecodeHeader parses the fixed 24-byte header prefix of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < 24 {
		return Header{}, ErrShortHeader
	}
	return Header{
		Magic:    b[0],
		Opcode:   Opcode(b[1]),
		KeyLen:   binary.BigEndian.Uint16(b[2:4]),
		ExtLen:   b[4],
		DataType: b[5],
		BodyLen:  binary.BigEndian.Uint32(b[8:12]),
		Opaque:   binary.BigEndian.Uint32(b[12:16]),
		CAS:      binary.BigEndian.Uint64(b[16:24]),
	}, nil
}

// KeyOffset returns the byte offset of the key region within the full
// message (header + body).
func (h Header) KeyOffset() int {
	return 24 + int(h.ExtLen)
}

// ValueOffset returns the byte offset of the value region within the full
// message.
func (h Header) ValueOffset() int {
	return h.KeyOffset() + int(h.KeyLen)
}

// Response describes the fields to encode into a 24-byte reply header.
// A Magic of zero marks a quiet suppression (spec §4.3). The session
// driver does not inspect Magic: it suppresses a reply by producing no
// reply chain for the request.
type Response struct {
	Magic   byte
	Opcode  Opcode
	KeyLen  uint16
	ExtLen  byte
	Status  Status
	BodyLen uint32
	Opaque  uint32
	CAS     uint64
}

// Encode serializes r into a freshly-allocated 24-byte header.
func (r Response) Encode() []byte {
	b := make([]byte, 24)
	b[0] = r.Magic
	b[1] = byte(r.Opcode)
	binary.BigEndian.PutUint16(b[2:4], r.KeyLen)
	b[4] = r.ExtLen
	// b[5] datatype left zero; b[6:8] (reserved in a request) carries the
	// response status.
	binary.BigEndian.PutUint16(b[6:8], uint16(r.Status))
	binary.BigEndian.PutUint32(b[8:12], r.BodyLen)
	binary.BigEndian.PutUint32(b[12:16], r.Opaque)
	binary.BigEndian.PutUint64(b[16:24], r.CAS)
	return b
}

// NewReply builds the Response skeleton common to every non-quiet reply:
// the response magic, the mirrored opcode and opaque, and success status.
// Callers fill in KeyLen/ExtLen/BodyLen/Status as the specific opcode
// requires.
func NewReply(req Header) Response {
	return Response{
		Magic:  magicResponse,
		Opcode: req.Opcode,
		Opaque: req.Opaque,
		Status: StatusSuccess,
	}
}

// Quiet returns the zero Response, whose Magic field is 0, marking a
// request for which nothing is to be emitted.
func Quiet() Response {
	return Response{}
}
