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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSeqWraps(t *testing.T) {
	assert := assert.New(t)
	var tracker sessionTracker
	assert.Equal(uint16(1), tracker.nextSeq())
	assert.Equal(uint16(2), tracker.nextSeq())
	tracker.seq = 0xFFFE
	assert.Equal(uint16(0xFFFF), tracker.nextSeq())
	assert.Equal(uint16(0), tracker.nextSeq())
	assert.Equal(uint16(1), tracker.nextSeq())
}

func TestMatchReply(t *testing.T) {
	assert := assert.New(t)
	var tracker sessionTracker
	assert.False(tracker.matchReply(&FTPOp{Seq: 0}))
	seq := tracker.nextSeq()
	assert.True(tracker.matchReply(&FTPOp{Seq: seq}))
	assert.False(tracker.matchReply(&FTPOp{Seq: seq - 1}))
	tracker.nextSeq()
	assert.False(tracker.matchReply(&FTPOp{Seq: seq}))
}

func TestSingleActiveSession(t *testing.T) {
	assert := assert.New(t)
	var tracker sessionTracker
	_, active := tracker.currentSession()
	assert.False(active)

	assert.NoError(tracker.openSession(3))
	assert.ErrorIs(tracker.openSession(4), errSessionActive)
	session, active := tracker.currentSession()
	assert.True(active)
	assert.Equal(uint8(3), session)

	tracker.closeSession()
	_, active = tracker.currentSession()
	assert.False(active)
	assert.NoError(tracker.openSession(4))
}

func TestMatchBurst(t *testing.T) {
	assert := assert.New(t)
	var tracker sessionTracker
	packet := &FTPOp{Seq: 100, Session: 2, Opcode: OpAck, ReqOpcode: OpBurstReadFile}
	assert.False(tracker.matchBurst(packet))

	_ = tracker.openSession(2)
	assert.True(tracker.matchBurst(packet))
	assert.False(tracker.matchBurst(&FTPOp{Session: 3, Opcode: OpAck, ReqOpcode: OpBurstReadFile}))
	assert.False(tracker.matchBurst(&FTPOp{Session: 2, Opcode: OpAck, ReqOpcode: OpReadFile}))
}
