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

// sessionTracker owns the sequence counter and the single open session.
// It is only touched by the goroutine running the current operation.
type sessionTracker struct {
	seq      uint16
	lastSent uint16
	hasSent  bool
	session  uint8
	active   bool
}

// nextSeq returns the sequence number for a new request, wrapping at 65536.
func (s *sessionTracker) nextSeq() uint16 {
	s.seq++
	s.lastSent = s.seq
	s.hasSent = true
	return s.seq
}

func (s *sessionTracker) openSession(id uint8) error {
	if s.active {
		return errSessionActive
	}
	s.session = id
	s.active = true
	return nil
}

func (s *sessionTracker) closeSession() {
	s.active = false
	s.session = 0
}

func (s *sessionTracker) currentSession() (uint8, bool) {
	return s.session, s.active
}

// matchReply accepts only a reply to the most recently sent request.
// Stale replies are an artifact of retransmission and are dropped.
func (s *sessionTracker) matchReply(op *FTPOp) bool {
	return s.hasSent && op.Seq == s.lastSent
}

// matchBurst accepts any packet of the running burst on the open session.
// The remote numbers burst packets itself, so seq cannot be used here.
func (s *sessionTracker) matchBurst(op *FTPOp) bool {
	if !s.active || op.Session != s.session {
		return false
	}
	return op.ReqOpcode == OpBurstReadFile
}
