/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package protocol

// Opcode identifies a binary protocol operation (spec §4.3).
type Opcode byte

const (
	OpGet     Opcode = 0x00
	OpSet     Opcode = 0x01
	OpAdd     Opcode = 0x02
	OpReplace Opcode = 0x03
	OpDelete  Opcode = 0x04
	OpIncr    Opcode = 0x05
	OpDecr    Opcode = 0x06
	OpQuit    Opcode = 0x07
	OpFlush   Opcode = 0x08
	OpGetQ    Opcode = 0x09
	OpNoop    Opcode = 0x0A
	OpGetK    Opcode = 0x0C
	OpGetKQ   Opcode = 0x0D
	OpAppend  Opcode = 0x0E
	OpPrepend Opcode = 0x0F
	OpSetQ    Opcode = 0x11
	OpQuitQ   Opcode = 0x14
	OpFlushQ  Opcode = 0x18
)

// Status is the 16-bit response status field.
type Status uint16

const (
	StatusSuccess      Status = 0x0000
	StatusKeyNotFound  Status = 0x0001
	StatusNotSupported Status = 0x0081
)

// quietOpcodes are the "Q" variants that suppress some or all replies:
// GETQ/GETKQ reply only on a hit (a miss produces no bytes), while SETQ,
// QUITQ and FLUSHQ never reply - they perform their action silently, and
// SETQ never fails.
var quietOpcodes = map[Opcode]bool{
	OpGetQ:   true,
	OpGetKQ:  true,
	OpSetQ:   true,
	OpQuitQ:  true,
	OpFlushQ: true,
}

// IsQuiet reports whether op is a quiet ("Q") variant.
func IsQuiet(op Opcode) bool {
	return quietOpcodes[op]
}

// notSupportedOpcodes are decodable opcodes this server does not implement
// mutation semantics for. Per the REDESIGN FLAG in spec §9, these respond
// with StatusNotSupported rather than terminating the session, unlike the
// source this spec was distilled from.
var notSupportedOpcodes = map[Opcode]bool{
	OpAdd:     true,
	OpReplace: true,
	OpAppend:  true,
	OpPrepend: true,
	OpIncr:    true,
	OpDecr:    true,
	OpDelete:  true,
}

// IsNotSupported reports whether op is a recognized-but-unimplemented
// mutation opcode.
func IsNotSupported(op Opcode) bool {
	return notSupportedOpcodes[op]
}

// IsKnown reports whether op is any opcode this server recognizes,
// whether it implements it fully or only with a NOT_SUPPORTED reply. Any
// opcode outside this set terminates the session (spec §4.3, "other" row).
func IsKnown(op Opcode) bool {
	switch op {
	case OpGet, OpSet, OpQuit, OpFlush, OpGetQ, OpNoop, OpGetK, OpGetKQ, OpSetQ, OpQuitQ, OpFlushQ:
		return true
	}
	return notSupportedOpcodes[op]
}
