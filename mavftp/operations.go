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
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const kMaxPreallocSize = 16 * 1024 * 1024

func validPath(path string) bool {
	return len(path) > 0 && len(path) <= kMaxPayloadSize && strings.IndexByte(path, 0) < 0
}

// run executes one logical operation while holding the client.
func (c *Client) run(fn func() *Result) *Result {
	c.begin()
	result := fn()
	c.end(result)
	return result
}

func (c *Client) reportProgress(name string, transferred, total int64) {
	if c.config.OnProgress != nil {
		c.config.OnProgress(name, transferred, total)
	}
}

// simpleRequest runs a session-less request that only needs an Ack.
func (c *Client) simpleRequest(ctx context.Context, opcode Opcode, offset uint32, payload []byte) *Result {
	return c.run(func() *Result {
		_, result := c.transact(ctx, newRequest(opcode, 0, offset, payload))
		return result
	})
}

// openFile opens a session with OpenFileRO, OpenFileWO or CreateFile and returns the
// file size advertised by the remote, when present.
func (c *Client) openFile(ctx context.Context, opcode Opcode, path string) (uint32, bool, *Result) {
	reply, result := c.transact(ctx, newRequest(opcode, 0, 0, []byte(path)))
	if !result.OK() {
		return 0, false, result
	}
	if err := c.openedSession(reply.Session); err != nil {
		return 0, false, newResult(opcode.String(), ErrInvalidSession)
	}
	c.logger.Debug("%s %s: session %d", opcode, path, reply.Session)
	if len(reply.Payload) >= 4 {
		return binary.LittleEndian.Uint32(reply.Payload[:4]), true, result
	}
	return 0, false, result
}

// terminateSession closes the open session. Failure is logged, never reported,
// because the remote drops idle sessions on its own.
func (c *Client) terminateSession(ctx context.Context) {
	session, active := c.tracker.currentSession()
	if !active || c.checkStop(ctx) {
		// on cancellation end releases the session through abort
		return
	}
	defer c.closeSession()
	if _, result := c.transact(ctx, newRequest(OpTerminateSession, session, 0, nil)); !result.OK() {
		c.logger.Debug("%s", result.Message())
	}
}

// ListDirectory lists a remote directory, starting at entry index offset.
func (c *Client) ListDirectory(ctx context.Context, path string, offset uint32) ([]DirEntry, *Result) {
	const name = "ListDirectory"
	if !validPath(path) {
		return nil, newResult(name, ErrInvalidArguments)
	}
	var entries []DirEntry
	result := c.run(func() *Result {
		var raw []byte
		for {
			reply, result := c.transact(ctx, newRequest(OpListDirectory, 0, offset, []byte(path)))
			if result.ErrorCode == ErrEndOfFile {
				c.setState(StateSuccess)
				break
			}
			if !result.OK() {
				return result
			}
			if len(reply.Payload) == 0 {
				break
			}
			raw = append(raw, reply.Payload...)
			n := countEntries(reply.Payload)
			if n == 0 || uint64(offset)+uint64(n) > math.MaxUint32 {
				break
			}
			offset += n
		}
		var errs []*ListingError
		entries, errs = decodeListing(raw)
		for _, err := range errs {
			c.logger.Error("%s %s: %v", name, path, err)
		}
		return newResult(name, ErrNone)
	})
	if !result.OK() {
		return nil, result
	}
	return entries, result
}

// readRange reads with ReadFile requests from offset. A zero length reads until
// the end of the file. It stops at a short or empty Ack or at an EndOfFile Nack.
func (c *Client) readRange(ctx context.Context, session uint8, offset, length uint32, sink func(uint32, []byte)) *Result {
	remaining := length
	for length == 0 || remaining > 0 {
		want := uint32(c.config.ChunkSize)
		if length != 0 && remaining < want {
			want = remaining
		}
		req := newRequest(OpReadFile, session, offset, nil)
		req.Size = uint8(want)
		reply, result := c.transact(ctx, req)
		if result.ErrorCode == ErrEndOfFile {
			c.setState(StateSuccess)
			return newResult(OpReadFile.String(), ErrNone)
		}
		if !result.OK() {
			return result
		}
		n := uint32(len(reply.Payload))
		if n == 0 {
			break
		}
		if n > want {
			n = want
		}
		sink(offset, reply.Payload[:n])
		if uint64(offset)+uint64(n) > math.MaxUint32 {
			return newResult(OpReadFile.String(), ErrEndOfFile)
		}
		offset += n
		if length != 0 {
			remaining -= n
		}
		if n < want {
			break
		}
	}
	return newResult(OpReadFile.String(), ErrNone)
}

func (c *Client) readFile(ctx context.Context, path string) ([]byte, *Result) {
	const name = "ReadFile"
	size, sizeKnown, result := c.openFile(ctx, OpOpenFileRO, path)
	if !result.OK() {
		return nil, result
	}
	defer c.terminateSession(ctx)
	session, _ := c.tracker.currentSession()
	total := int64(size)

	if c.config.BurstRead {
		data, result := c.burstRead(ctx, path, session, size, sizeKnown)
		if !result.OK() {
			return nil, result
		}
		c.reportProgress(path, int64(len(data)), total)
		return data, newResult(name, ErrNone)
	}

	data := make([]byte, 0, minInt(int(size), kMaxPreallocSize))
	result = c.readRange(ctx, session, 0, 0, func(offset uint32, chunk []byte) {
		data = append(data, chunk...)
		c.reportProgress(path, int64(len(data)), total)
	})
	if !result.OK() {
		return nil, result
	}
	if sizeKnown && uint32(len(data)) != size {
		c.logger.Debug("%s %s: remote advertised %d bytes, read %d", name, path, size, len(data))
	}
	return data, newResult(name, ErrNone)
}

// ReadFile downloads a remote file.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, *Result) {
	if !validPath(path) {
		return nil, newResult("ReadFile", ErrInvalidArguments)
	}
	var data []byte
	result := c.run(func() *Result {
		var result *Result
		data, result = c.readFile(ctx, path)
		return result
	})
	return data, result
}

func (c *Client) writeFile(ctx context.Context, path string, data []byte) *Result {
	const name = "WriteFile"
	_, _, result := c.openFile(ctx, OpCreateFile, path)
	if !result.OK() {
		return result
	}
	defer c.terminateSession(ctx)
	session, _ := c.tracker.currentSession()
	total := int64(len(data))
	for offset := 0; offset < len(data); {
		n := minInt(c.config.ChunkSize, len(data)-offset)
		req := newRequest(OpWriteFile, session, uint32(offset), data[offset:offset+n])
		if _, result := c.transact(ctx, req); !result.OK() {
			return result
		}
		offset += n
		c.reportProgress(path, int64(offset), total)
	}
	return newResult(name, ErrNone)
}

// WriteFile creates or replaces a remote file with data. Chunks are sent one at a
// time, each acknowledged before the offset advances.
func (c *Client) WriteFile(ctx context.Context, path string, data []byte) *Result {
	const name = "WriteFile"
	if !validPath(path) || uint64(len(data)) > math.MaxUint32 {
		return newResult(name, ErrInvalidArguments)
	}
	if c.sessionBusy.Load() {
		return newResult(name, ErrPutAlreadyInProgress)
	}
	return c.run(func() *Result {
		return c.writeFile(ctx, path, data)
	})
}

// CreateFile creates an empty remote file.
func (c *Client) CreateFile(ctx context.Context, path string) *Result {
	if !validPath(path) {
		return newResult("CreateFile", ErrInvalidArguments)
	}
	return c.run(func() *Result {
		_, _, result := c.openFile(ctx, OpCreateFile, path)
		if result.OK() {
			c.terminateSession(ctx)
		}
		return result
	})
}

// RemoveFile deletes a remote file.
func (c *Client) RemoveFile(ctx context.Context, path string) *Result {
	if !validPath(path) {
		return newResult("RemoveFile", ErrInvalidArguments)
	}
	return c.simpleRequest(ctx, OpRemoveFile, 0, []byte(path))
}

// CreateDirectory creates a remote directory.
func (c *Client) CreateDirectory(ctx context.Context, path string) *Result {
	if !validPath(path) {
		return newResult("CreateDirectory", ErrInvalidArguments)
	}
	return c.simpleRequest(ctx, OpCreateDirectory, 0, []byte(path))
}

// RemoveDirectory deletes an empty remote directory.
func (c *Client) RemoveDirectory(ctx context.Context, path string) *Result {
	if !validPath(path) {
		return newResult("RemoveDirectory", ErrInvalidArguments)
	}
	return c.simpleRequest(ctx, OpRemoveDirectory, 0, []byte(path))
}

// Rename moves oldPath to newPath. Both names travel NUL separated in one payload.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) *Result {
	if !validPath(oldPath) || !validPath(newPath) || len(oldPath)+1+len(newPath) > kMaxPayloadSize {
		return newResult("Rename", ErrInvalidArguments)
	}
	payload := make([]byte, 0, len(oldPath)+1+len(newPath))
	payload = append(payload, oldPath...)
	payload = append(payload, 0)
	payload = append(payload, newPath...)
	return c.simpleRequest(ctx, OpRename, 0, payload)
}

// TruncateFile cuts a remote file to size bytes.
func (c *Client) TruncateFile(ctx context.Context, path string, size uint32) *Result {
	if !validPath(path) {
		return newResult("TruncateFile", ErrInvalidArguments)
	}
	return c.simpleRequest(ctx, OpTruncateFile, size, []byte(path))
}

// CalcFileCRC32 asks the remote for the CRC32 of a file.
func (c *Client) CalcFileCRC32(ctx context.Context, path string) (uint32, *Result) {
	const name = "CalcFileCRC32"
	if !validPath(path) {
		return 0, newResult(name, ErrInvalidArguments)
	}
	var crc uint32
	result := c.run(func() *Result {
		reply, result := c.transact(ctx, newRequest(OpCalcFileCRC32, 0, 0, []byte(path)))
		if !result.OK() {
			return result
		}
		if len(reply.Payload) < 4 {
			return newResult(name, ErrInvalidDataSize)
		}
		crc = binary.LittleEndian.Uint32(reply.Payload[:4])
		return result
	})
	return crc, result
}

// ResetSessions asks the remote to drop every open session.
func (c *Client) ResetSessions(ctx context.Context) *Result {
	return c.run(func() *Result {
		_, result := c.transact(ctx, newRequest(OpResetSessions, 0, 0, nil))
		c.closeSession()
		return result
	})
}

// Get downloads remotePath into localPath. The data goes to a temporary file next
// to localPath, which replaces localPath only once the download succeeded.
func (c *Client) Get(ctx context.Context, remotePath, localPath string) *Result {
	const name = "Get"
	if !validPath(remotePath) || localPath == "" {
		return newResult(name, ErrInvalidArguments)
	}
	file, err := os.CreateTemp(filepath.Dir(localPath), ".mavftp_*.tmp")
	if err != nil {
		c.logger.Error("%s: %v", name, err)
		return newResult(name, ErrFailToOpenLocalFile)
	}
	tmpPath := file.Name()
	fail := func(result *Result) *Result {
		file.Close()
		_ = os.Remove(tmpPath)
		return result
	}
	data, result := c.ReadFile(ctx, remotePath)
	if !result.OK() {
		return fail(result)
	}
	if err := writeAll(file, data); err != nil {
		c.logger.Error("%s: %v", name, err)
		return fail(newResult(name, ErrFailToOpenLocalFile))
	}
	if err := file.Chmod(0644); err != nil {
		c.logger.Debug("%s: %v", name, err)
	}
	if err := file.Close(); err != nil {
		c.logger.Error("%s: %v", name, err)
		_ = os.Remove(tmpPath)
		return newResult(name, ErrFailToOpenLocalFile)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		c.logger.Error("%s: %v", name, err)
		_ = os.Remove(tmpPath)
		return newResult(name, ErrFailToOpenLocalFile)
	}
	return newResult(name, ErrNone)
}

// Put uploads localPath to remotePath.
func (c *Client) Put(ctx context.Context, localPath, remotePath string) *Result {
	const name = "Put"
	if !validPath(remotePath) || localPath == "" {
		return newResult(name, ErrInvalidArguments)
	}
	if c.sessionBusy.Load() {
		return newResult(name, ErrPutAlreadyInProgress)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		c.logger.Error("%s: %v", name, err)
		return newResult(name, ErrFailToOpenLocalFile)
	}
	return c.WriteFile(ctx, remotePath, data)
}
