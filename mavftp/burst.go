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
	"context"
	"errors"
	"math"
	"sort"
)

type byteSpan struct {
	offset uint32
	length uint32
}

// burstAssembler collects burst packets by offset, in any arrival order.
type burstAssembler struct {
	chunks map[uint32][]byte
	end    uint32
}

func newBurstAssembler() *burstAssembler {
	return &burstAssembler{chunks: make(map[uint32][]byte)}
}

func (a *burstAssembler) add(offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if uint64(offset)+uint64(len(data)) > math.MaxUint32 {
		data = data[:math.MaxUint32-offset]
	}
	if prev, ok := a.chunks[offset]; ok && len(prev) >= len(data) {
		return
	}
	a.chunks[offset] = data
	if end := offset + uint32(len(data)); end > a.end {
		a.end = end
	}
}

func (a *burstAssembler) offsets() []uint32 {
	offsets := make([]uint32, 0, len(a.chunks))
	for offset := range a.chunks {
		offsets = append(offsets, offset)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

// gaps returns the byte ranges below size that no packet covered.
func (a *burstAssembler) gaps(size uint32) []byteSpan {
	var gaps []byteSpan
	cursor := uint32(0)
	for _, offset := range a.offsets() {
		if offset > cursor {
			gaps = append(gaps, byteSpan{cursor, offset - cursor})
		}
		if end := offset + uint32(len(a.chunks[offset])); end > cursor {
			cursor = end
		}
	}
	if size > cursor {
		gaps = append(gaps, byteSpan{cursor, size - cursor})
	}
	return gaps
}

// bytes joins the chunks. Overlapping packets are trimmed, so it must only be
// called once gaps reports nothing missing.
func (a *burstAssembler) bytes() []byte {
	data := make([]byte, 0, a.end)
	for _, offset := range a.offsets() {
		chunk := a.chunks[offset]
		cursor := uint32(len(data))
		if offset+uint32(len(chunk)) <= cursor {
			continue
		}
		data = append(data, chunk[cursor-offset:]...)
	}
	return data
}

// burstOutcome is how one burst ended.
type burstOutcome struct {
	complete bool
	eof      bool
	packets  int
}

// burst sends one BurstReadFile request and consumes packets until the remote marks
// the burst complete, reports the end of the file, or goes silent.
func (c *Client) burst(ctx context.Context, path string, session uint8, offset uint32, total int64, assembler *burstAssembler) (burstOutcome, *Result) {
	const name = "BurstReadFile"
	var outcome burstOutcome
	req := newRequest(OpBurstReadFile, session, offset, nil)
	req.Size = uint8(c.config.ChunkSize)
	req.Seq = c.tracker.nextSeq()
	timeouts := 0
	for {
		if c.checkStop(ctx) {
			return outcome, newResult(name, ErrCancelled)
		}
		if outcome.packets == 0 {
			if err := c.sendRecord(req); err != nil {
				c.logger.Error("send %s failed: %v", name, err)
			}
		}
		c.setState(StateAwaitingReply)

		timer := c.newTimer()
		buf, err := c.buffer.nextRecord(ctx, timer.C)
		timer.Stop()
		if err == errReceiveTimeout {
			if outcome.packets > 0 {
				// the tail of the burst was lost, gap filling recovers it
				c.logger.Debug("%s at %d: went silent after %d packets", name, offset, outcome.packets)
				c.setState(StateSuccess)
				return outcome, newResult(name, ErrNone)
			}
			if timeouts >= c.config.MaxRetries {
				c.setState(StateTimedOut)
				return outcome, newResult(name, ErrRemoteReplyTimeout)
			}
			timeouts++
			c.setState(StateRetrying)
			continue
		}
		if err != nil {
			return outcome, newResult(name, ErrCancelled)
		}

		op, err := DecodeFTPOp(buf)
		if err != nil {
			if errors.Is(err, ErrMalformedRecord) {
				c.setState(StateFailed)
				c.logger.Error("%s: %v", name, err)
				return outcome, newResult(name, ErrMalformedReply)
			}
			return outcome, newResult(name, ErrCancelled)
		}
		if !c.tracker.matchReply(op) && !c.tracker.matchBurst(op) {
			c.discarded.Add(1)
			c.logger.Debug("discard stale reply %s during burst", op)
			continue
		}

		result := decodeReply(name, op)
		if result.ErrorCode == ErrEndOfFile {
			outcome.eof = true
			c.setState(StateSuccess)
			return outcome, newResult(name, ErrNone)
		}
		if !result.OK() {
			c.setState(StateFailed)
			return outcome, result
		}
		outcome.packets++
		assembler.add(op.Offset, op.Payload)
		c.reportProgress(path, int64(assembler.end), total)
		if op.BurstComplete {
			outcome.complete = true
			c.setState(StateSuccess)
			return outcome, result
		}
	}
}

// burstRead downloads the open file with bursts, then re-reads any range a
// lost packet left empty with plain ReadFile requests.
func (c *Client) burstRead(ctx context.Context, path string, session uint8, size uint32, sizeKnown bool) ([]byte, *Result) {
	assembler := newBurstAssembler()
	offset := uint32(0)
	eof := false
	for !eof {
		outcome, result := c.burst(ctx, path, session, offset, int64(size), assembler)
		if !result.OK() {
			return nil, result
		}
		eof = outcome.eof
		if sizeKnown && assembler.end >= size {
			break
		}
		if outcome.packets == 0 || assembler.end <= offset {
			break
		}
		offset = assembler.end
	}

	limit := assembler.end
	if sizeKnown && size > limit {
		limit = size
	}
	for _, gap := range assembler.gaps(limit) {
		c.logger.Debug("BurstReadFile: refetch %d bytes at %d", gap.length, gap.offset)
		length := gap.length
		if gap.offset+gap.length == limit && !eof {
			// the tail may extend past the advertised size
			length = 0
		}
		result := c.readRange(ctx, session, gap.offset, length, assembler.add)
		if !result.OK() {
			return nil, result
		}
	}
	if gaps := assembler.gaps(limit); len(gaps) > 0 {
		c.logger.Error("BurstReadFile: %d bytes missing at %d", gaps[0].length, gaps[0].offset)
		return nil, newResult("BurstReadFile", ErrInvalidDataSize)
	}
	return assembler.bytes(), newResult("BurstReadFile", ErrNone)
}
