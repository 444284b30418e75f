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
	"time"
)

// recordBuffer queues inbound records from the transport goroutine until the
// operation goroutine asks for the next one.
type recordBuffer struct {
	bufCh  chan []byte
	stopCh chan struct{}
}

func newRecordBuffer() *recordBuffer {
	return &recordBuffer{bufCh: make(chan []byte, 1024), stopCh: make(chan struct{}, 1)}
}

// addRecord never blocks: when the queue is full the oldest record is dropped,
// which the protocol recovers from like any other loss on the link.
func (b *recordBuffer) addRecord(buf []byte) bool {
	for {
		select {
		case b.bufCh <- buf:
			return true
		default:
		}
		select {
		case <-b.bufCh:
		default:
		}
	}
}

func (b *recordBuffer) stopBuffer() {
	select {
	case b.stopCh <- struct{}{}:
	default:
	}
}

func (b *recordBuffer) resetStop() {
	select {
	case <-b.stopCh:
	default:
	}
}

func (b *recordBuffer) drainBuffer() int {
	n := 0
	for {
		select {
		case <-b.bufCh:
			n++
		default:
			return n
		}
	}
}

// nextRecord waits for the next inbound record. A nil timeout waits forever.
func (b *recordBuffer) nextRecord(ctx context.Context, timeout <-chan time.Time) ([]byte, error) {
	select {
	case buf := <-b.bufCh:
		return buf, nil
	case <-b.stopCh:
		return nil, errStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, errReceiveTimeout
	}
}
