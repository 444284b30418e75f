/*
MIT License

Copyright (c) 2024 The Mavftp Authors.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package mavftp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	kHeaderSize      = 12
	kMaxPayloadSize  = 239
	kRecordSize      = kHeaderSize + kMaxPayloadSize
	kBurstFlagOffset = 6
)

// Opcode identifies the operation carried by an FTPOp.
type Opcode uint8

const (
	OpNone             Opcode = 0
	OpTerminateSession Opcode = 1
	OpResetSessions    Opcode = 2
	OpListDirectory    Opcode = 3
	OpOpenFileRO       Opcode = 4
	OpReadFile         Opcode = 5
	OpCreateFile       Opcode = 6
	OpWriteFile        Opcode = 7
	OpRemoveFile       Opcode = 8
	OpCreateDirectory  Opcode = 9
	OpRemoveDirectory  Opcode = 10
	OpOpenFileWO       Opcode = 11
	OpTruncateFile     Opcode = 12
	OpRename           Opcode = 13
	OpCalcFileCRC32    Opcode = 14
	OpBurstReadFile    Opcode = 15
	OpAck              Opcode = 128
	OpNack             Opcode = 129
)

var opcodeNames = map[Opcode]string{
	OpNone:             "None",
	OpTerminateSession: "TerminateSession",
	OpResetSessions:    "ResetSessions",
	OpListDirectory:    "ListDirectory",
	OpOpenFileRO:       "OpenFileRO",
	OpReadFile:         "ReadFile",
	OpCreateFile:       "CreateFile",
	OpWriteFile:        "WriteFile",
	OpRemoveFile:       "RemoveFile",
	OpCreateDirectory:  "CreateDirectory",
	OpRemoveDirectory:  "RemoveDirectory",
	OpOpenFileWO:       "OpenFileWO",
	OpTruncateFile:     "TruncateFile",
	OpRename:           "Rename",
	OpCalcFileCRC32:    "CalcFileCRC32",
	OpBurstReadFile:    "BurstReadFile",
	OpAck:              "Ack",
	OpNack:             "Nack",
}

// Known reports whether the opcode is part of the protocol.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

// ErrMalformedRecord is returned by DecodeFTPOp for records that cannot hold a valid FTPOp.
var ErrMalformedRecord = errors.New("malformed record")

// FTPOp is one request or reply record of the file transfer protocol.
//
// ReqOpcode is only meaningful on Ack and Nack replies.
type FTPOp struct {
	Seq           uint16
	Session       uint8
	Opcode        Opcode
	Size          uint8
	ReqOpcode     Opcode
	BurstComplete bool
	Offset        uint32
	Payload       []byte
}

// Encode serializes the op into the fixed 251 byte record carried by FILE_TRANSFER_PROTOCOL.
//
//	0      2         3        4      5            6               7         8        12        251
//	┌──────┬─────────┬────────┬──────┬────────────┬───────────────┬─────────┬────────┬─────────┐
//	│ seq  │ session │ opcode │ size │ req_opcode │ burst_complete│ padding │ offset │ payload │
//	└──────┴─────────┴────────┴──────┴────────────┴───────────────┴─────────┴────────┴─────────┘
//
// Multi-byte fields are little-endian. The payload is truncated to 239 bytes and zero padded.
func (op *FTPOp) Encode() []byte {
	buf := make([]byte, kRecordSize)
	binary.LittleEndian.PutUint16(buf[0:2], op.Seq)
	buf[2] = op.Session
	buf[3] = byte(op.Opcode)
	buf[4] = op.Size
	buf[5] = byte(op.ReqOpcode)
	if op.BurstComplete {
		buf[kBurstFlagOffset] = 1
	}
	binary.LittleEndian.PutUint32(buf[8:12], op.Offset)
	copy(buf[kHeaderSize:], op.Payload)
	return buf
}

// DecodeFTPOp parses a record received from the link.
// The returned payload is a copy of exactly Size bytes.
func DecodeFTPOp(buf []byte) (*FTPOp, error) {
	if len(buf) < kHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrMalformedRecord, len(buf), kHeaderSize)
	}
	op := &FTPOp{
		Seq:           binary.LittleEndian.Uint16(buf[0:2]),
		Session:       buf[2],
		Opcode:        Opcode(buf[3]),
		Size:          buf[4],
		ReqOpcode:     Opcode(buf[5]),
		BurstComplete: buf[kBurstFlagOffset] != 0,
		Offset:        binary.LittleEndian.Uint32(buf[8:12]),
	}
	remaining := len(buf) - kHeaderSize
	if remaining > kMaxPayloadSize {
		remaining = kMaxPayloadSize
	}
	if int(op.Size) > remaining {
		return nil, fmt.Errorf("%w: size %d exceeds the %d payload bytes available", ErrMalformedRecord, op.Size, remaining)
	}
	if op.Size > 0 {
		op.Payload = make([]byte, op.Size)
		copy(op.Payload, buf[kHeaderSize:kHeaderSize+int(op.Size)])
	}
	return op, nil
}

func (op *FTPOp) String() string {
	s := fmt.Sprintf("%s seq=%d session=%d size=%d offset=%d", op.Opcode, op.Seq, op.Session, op.Size, op.Offset)
	if op.Opcode == OpAck || op.Opcode == OpNack {
		s += fmt.Sprintf(" req=%s", op.ReqOpcode)
	}
	if op.BurstComplete {
		s += " burst_complete"
	}
	return s
}

func newRequest(opcode Opcode, session uint8, offset uint32, payload []byte) *FTPOp {
	if len(payload) > kMaxPayloadSize {
		payload = payload[:kMaxPayloadSize]
	}
	return &FTPOp{
		Session: session,
		Opcode:  opcode,
		Size:    uint8(len(payload)),
		Offset:  offset,
		Payload: payload,
	}
}
