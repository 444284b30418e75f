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
	"sync"
	"sync/atomic"
	"time"
)

// Transport hands one encoded record to the link. Inbound records are delivered
// by the transport through Client.OnReceive, in arrival order.
type Transport interface {
	Send(record []byte) error
}

// State is the position of the protocol state machine.
type State int32

const (
	StateIdle State = iota
	StateAwaitingReply
	StateRetrying
	StateSuccess
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingReply:
		return "AwaitingReply"
	case StateRetrying:
		return "Retrying"
	case StateSuccess:
		return "Success"
	case StateFailed:
		return "Failed"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

type recordTracer interface {
	writeTraceLog(buf []byte, typ string)
}

// Client drives MAVFTP operations against one remote endpoint.
//
// Operations are sequential: a second caller blocks until the running operation
// reaches a terminal state. Cancel may be called from any goroutine.
type Client struct {
	transport   Transport
	config      *Config
	logger      Logger
	tracer      recordTracer
	buffer      *recordBuffer
	tracker     sessionTracker
	state       atomic.Int32
	opMutex     sync.Mutex
	stopped     atomic.Bool
	sessionBusy atomic.Bool
	discarded   atomic.Int64
}

// NewClient creates a client sending through transport. A nil config selects DefaultConfig.
func NewClient(transport Transport, config *Config) *Client {
	cfg := config.normalize()
	c := &Client{
		transport: transport,
		config:    cfg,
		logger:    cfg.Logger,
		buffer:    newRecordBuffer(),
	}
	if tracer, ok := cfg.Logger.(recordTracer); ok {
		c.tracer = tracer
	}
	return c
}

// OnReceive queues one inbound FILE_TRANSFER_PROTOCOL payload. It never blocks
// and may be called from the transport goroutine.
func (c *Client) OnReceive(record []byte) {
	buf := make([]byte, len(record))
	copy(buf, record)
	if c.tracer != nil {
		c.tracer.writeTraceLog(buf, "recv")
	}
	c.buffer.addRecord(buf)
}

// State returns the current state of the protocol state machine.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(state State) {
	c.state.Store(int32(state))
}

// Cancel aborts the running operation. The operation returns ErrCancelled,
// its session is released and partial data is discarded.
func (c *Client) Cancel() {
	c.stopped.Store(true)
	c.buffer.stopBuffer()
}

func (c *Client) checkStop(ctx context.Context) bool {
	return c.stopped.Load() || ctx.Err() != nil
}

func (c *Client) begin() {
	c.opMutex.Lock()
	c.stopped.Store(false)
	c.buffer.resetStop()
	if n := c.buffer.drainBuffer(); n > 0 {
		c.logger.Debug("dropped %d stale records before starting", n)
	}
	c.setState(StateIdle)
}

// end releases a session the operation left open, which happens when a cancel
// lands between the last data reply and TerminateSession.
func (c *Client) end(result *Result) {
	defer c.opMutex.Unlock()
	_, active := c.tracker.currentSession()
	if active || (result != nil && result.ErrorCode == ErrCancelled) {
		c.abort()
	}
}

// abort releases the session without waiting for the remote to confirm it.
func (c *Client) abort() {
	if session, active := c.tracker.currentSession(); active {
		req := newRequest(OpTerminateSession, session, 0, nil)
		req.Seq = c.tracker.nextSeq()
		if err := c.sendRecord(req); err != nil {
			c.logger.Debug("terminate session %d on abort: %v", session, err)
		}
		c.closeSession()
	}
	c.buffer.drainBuffer()
	c.setState(StateIdle)
}

func (c *Client) openedSession(session uint8) error {
	if err := c.tracker.openSession(session); err != nil {
		return err
	}
	c.sessionBusy.Store(true)
	return nil
}

func (c *Client) closeSession() {
	c.tracker.closeSession()
	c.sessionBusy.Store(false)
}

func (c *Client) sendRecord(op *FTPOp) error {
	record := op.Encode()
	if c.tracer != nil {
		c.tracer.writeTraceLog(record, "send")
	}
	c.logger.Debug("send %s", op)
	return c.transport.Send(record)
}

func (c *Client) newTimer() *time.Timer {
	return time.NewTimer(c.config.Timeout)
}

// awaitReply waits for the reply matching req. Stale replies are dropped
// without touching the state machine.
func (c *Client) awaitReply(ctx context.Context, req *FTPOp, timer *time.Timer) (*FTPOp, error) {
	for {
		buf, err := c.buffer.nextRecord(ctx, timer.C)
		if err != nil {
			return nil, err
		}
		reply, err := DecodeFTPOp(buf)
		if err != nil {
			return nil, err
		}
		if !c.tracker.matchReply(reply) {
			c.discarded.Add(1)
			c.logger.Debug("discard stale reply %s, waiting for seq %d", reply, req.Seq)
			continue
		}
		c.logger.Debug("recv %s", reply)
		return reply, nil
	}
}

// transact sends req and supervises it until a terminal outcome: the matching
// Ack or Nack, a malformed reply, retries exhausted, or cancellation.
func (c *Client) transact(ctx context.Context, req *FTPOp) (*FTPOp, *Result) {
	name := req.Opcode.String()
	req.Seq = c.tracker.nextSeq()
	timeouts := 0
	backoffs := 0
	for {
		if c.checkStop(ctx) {
			return nil, newResult(name, ErrCancelled)
		}
		if err := c.sendRecord(req); err != nil {
			// a failed send is handled like a lost request
			c.logger.Error("send %s failed: %v", name, err)
		}
		c.setState(StateAwaitingReply)

		timer := c.newTimer()
		reply, err := c.awaitReply(ctx, req, timer)
		timer.Stop()

		if err != nil {
			if err == errReceiveTimeout {
				if timeouts >= c.config.MaxRetries {
					c.setState(StateTimedOut)
					c.logger.Error("%s seq %d: no reply after %d attempts", name, req.Seq, timeouts+1)
					return nil, newResult(name, ErrRemoteReplyTimeout)
				}
				timeouts++
				c.setState(StateRetrying)
				c.logger.Debug("%s seq %d: timeout, retry %d/%d", name, req.Seq, timeouts, c.config.MaxRetries)
				continue
			}
			if errors.Is(err, ErrMalformedRecord) {
				c.setState(StateFailed)
				c.logger.Error("%s: %v", name, err)
				return nil, newResult(name, ErrMalformedReply)
			}
			return nil, newResult(name, ErrCancelled)
		}

		result := decodeReply(name, reply)
		if result.ErrorCode == ErrNoSessionsAvailable && backoffs < c.config.MaxRetries {
			backoffs++
			c.setState(StateRetrying)
			delay := time.Duration(backoffs) * c.config.RetryBackoff
			c.logger.Debug("%s: no sessions available, retry %d/%d in %v", name, backoffs, c.config.MaxRetries, delay)
			if !c.sleep(ctx, delay) {
				return nil, newResult(name, ErrCancelled)
			}
			req.Seq = c.tracker.nextSeq()
			continue
		}
		if result.OK() {
			c.setState(StateSuccess)
		} else {
			c.setState(StateFailed)
		}
		return reply, result
	}
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !c.checkStop(ctx)
	case <-c.buffer.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
