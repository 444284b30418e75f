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
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockRemote plays the flight controller side of the protocol in memory.
type mockRemote struct {
	t      *testing.T
	mu     sync.Mutex
	client *Client

	files       map[string][]byte
	dirs        map[string][]string
	sessions    map[uint8]string
	nextSession uint8
	maxSessions int

	requests []*FTPOp

	// failure injection
	dropRequest   func(idx int, req *FTPOp) bool
	dropReply     func(idx int, reply *FTPOp) bool
	noSessions    int
	staleReplies  bool
	burstLimit    int
	hideFileSize  bool
	override      func(req *FTPOp) [][]byte
	replyCount    int
	sendErrors    int
	sendErrorText string
}

func newMockRemote(t *testing.T) *mockRemote {
	return &mockRemote{
		t:           t,
		files:       make(map[string][]byte),
		dirs:        map[string][]string{"/": nil},
		sessions:    make(map[uint8]string),
		maxSessions: 3,
	}
}

func (r *mockRemote) addFile(path string, data []byte) {
	r.files[path] = data
	dir := path[:strings.LastIndex(path, "/")+1]
	if dir != "/" {
		dir = strings.TrimSuffix(dir, "/")
	}
	r.dirs[dir] = append(r.dirs[dir], fmt.Sprintf("F%s\t%d", path[strings.LastIndex(path, "/")+1:], len(data)))
}

func (r *mockRemote) addDir(path string, entries []string) {
	r.dirs[path] = entries
}

func (r *mockRemote) sent() []*FTPOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FTPOp(nil), r.requests...)
}

func (r *mockRemote) opcodes() []Opcode {
	var ops []Opcode
	for _, req := range r.sent() {
		ops = append(ops, req.Opcode)
	}
	return ops
}

func (r *mockRemote) countOpcode(opcode Opcode) int {
	n := 0
	for _, req := range r.sent() {
		if req.Opcode == opcode {
			n++
		}
	}
	return n
}

func (r *mockRemote) Send(record []byte) error {
	r.mu.Lock()
	if r.sendErrors > 0 {
		r.sendErrors--
		r.mu.Unlock()
		return newSimpleMavftpError(r.sendErrorText)
	}
	req, err := DecodeFTPOp(record)
	if err != nil {
		r.mu.Unlock()
		r.t.Errorf("client sent a malformed record: %v", err)
		return nil
	}
	idx := len(r.requests)
	r.requests = append(r.requests, req)
	if r.dropRequest != nil && r.dropRequest(idx, req) {
		r.mu.Unlock()
		return nil
	}
	var records [][]byte
	if r.override != nil {
		records = r.override(req)
	}
	if records == nil {
		for _, reply := range r.handle(req) {
			n := r.replyCount
			r.replyCount++
			if r.dropReply != nil && r.dropReply(n, reply) {
				continue
			}
			if r.staleReplies {
				stale := *reply
				stale.Seq--
				records = append(records, stale.Encode())
			}
			records = append(records, reply.Encode())
		}
	}
	client := r.client
	r.mu.Unlock()
	for _, record := range records {
		client.OnReceive(record)
	}
	return nil
}

func ack(req *FTPOp, payload []byte) *FTPOp {
	return &FTPOp{
		Seq:       req.Seq,
		Session:   req.Session,
		Opcode:    OpAck,
		Size:      uint8(len(payload)),
		ReqOpcode: req.Opcode,
		Offset:    req.Offset,
		Payload:   payload,
	}
}

func nack(req *FTPOp, code ErrorCode, errno ...byte) *FTPOp {
	payload := append([]byte{byte(code)}, errno...)
	reply := ack(req, payload)
	reply.Opcode = OpNack
	return reply
}

func (r *mockRemote) openSession(req *FTPOp, path string) *FTPOp {
	if r.noSessions > 0 {
		r.noSessions--
		return nack(req, ErrNoSessionsAvailable)
	}
	if len(r.sessions) >= r.maxSessions {
		return nack(req, ErrNoSessionsAvailable)
	}
	r.nextSession++
	r.sessions[r.nextSession] = path
	reply := ack(req, nil)
	reply.Session = r.nextSession
	if !r.hideFileSize {
		size := make([]byte, 4)
		binary.LittleEndian.PutUint32(size, uint32(len(r.files[path])))
		reply.Payload = size
		reply.Size = 4
	}
	return reply
}

func (r *mockRemote) listing(req *FTPOp, path string) *FTPOp {
	entries, ok := r.dirs[path]
	if !ok {
		return nack(req, ErrFileNotFound)
	}
	if int(req.Offset) >= len(entries) {
		return nack(req, ErrEndOfFile)
	}
	var payload []byte
	for _, entry := range entries[req.Offset:] {
		if len(payload)+len(entry)+1 > kMaxPayloadSize {
			break
		}
		payload = append(payload, entry...)
		payload = append(payload, 0)
	}
	return ack(req, payload)
}

func (r *mockRemote) handle(req *FTPOp) []*FTPOp {
	path := string(req.Payload)
	switch req.Opcode {
	case OpListDirectory:
		return []*FTPOp{r.listing(req, path)}
	case OpOpenFileRO:
		if _, ok := r.files[path]; !ok {
			return []*FTPOp{nack(req, ErrFileNotFound)}
		}
		return []*FTPOp{r.openSession(req, path)}
	case OpCreateFile, OpOpenFileWO:
		if req.Opcode == OpCreateFile {
			r.files[path] = nil
		}
		return []*FTPOp{r.openSession(req, path)}
	case OpReadFile:
		name, ok := r.sessions[req.Session]
		if !ok {
			return []*FTPOp{nack(req, ErrInvalidSession)}
		}
		data := r.files[name]
		if int(req.Offset) >= len(data) {
			return []*FTPOp{nack(req, ErrEndOfFile)}
		}
		end := minInt(len(data), int(req.Offset)+int(req.Size))
		return []*FTPOp{ack(req, data[req.Offset:end])}
	case OpBurstReadFile:
		name, ok := r.sessions[req.Session]
		if !ok {
			return []*FTPOp{nack(req, ErrInvalidSession)}
		}
		data := r.files[name]
		if int(req.Offset) >= len(data) {
			return []*FTPOp{nack(req, ErrEndOfFile)}
		}
		var replies []*FTPOp
		for offset := int(req.Offset); offset < len(data); offset += int(req.Size) {
			end := minInt(len(data), offset+int(req.Size))
			reply := ack(req, data[offset:end])
			reply.Offset = uint32(offset)
			replies = append(replies, reply)
			if r.burstLimit > 0 && len(replies) >= r.burstLimit {
				break
			}
		}
		replies[len(replies)-1].BurstComplete = true
		return replies
	case OpWriteFile:
		name, ok := r.sessions[req.Session]
		if !ok {
			return []*FTPOp{nack(req, ErrInvalidSession)}
		}
		data := r.files[name]
		if end := int(req.Offset) + len(req.Payload); end > len(data) {
			data = append(data, make([]byte, end-len(data))...)
		}
		copy(data[req.Offset:], req.Payload)
		r.files[name] = data
		return []*FTPOp{ack(req, nil)}
	case OpTerminateSession:
		if _, ok := r.sessions[req.Session]; !ok {
			return []*FTPOp{nack(req, ErrInvalidSession)}
		}
		delete(r.sessions, req.Session)
		return []*FTPOp{ack(req, nil)}
	case OpResetSessions:
		r.sessions = make(map[uint8]string)
		return []*FTPOp{ack(req, nil)}
	case OpRemoveFile:
		if _, ok := r.files[path]; !ok {
			return []*FTPOp{nack(req, ErrFileNotFound)}
		}
		delete(r.files, path)
		return []*FTPOp{ack(req, nil)}
	case OpCreateDirectory:
		if _, ok := r.dirs[path]; ok {
			return []*FTPOp{nack(req, ErrFileExists)}
		}
		r.dirs[path] = nil
		return []*FTPOp{ack(req, nil)}
	case OpRemoveDirectory:
		entries, ok := r.dirs[path]
		if !ok {
			return []*FTPOp{nack(req, ErrFileNotFound)}
		}
		if len(entries) > 0 {
			return []*FTPOp{nack(req, ErrFailErrno, 39)}
		}
		delete(r.dirs, path)
		return []*FTPOp{ack(req, nil)}
	case OpRename:
		names := strings.SplitN(path, "\x00", 2)
		if len(names) != 2 {
			return []*FTPOp{nack(req, ErrFail)}
		}
		data, ok := r.files[names[0]]
		if !ok {
			return []*FTPOp{nack(req, ErrFileNotFound)}
		}
		delete(r.files, names[0])
		r.files[names[1]] = data
		return []*FTPOp{ack(req, nil)}
	case OpTruncateFile:
		data, ok := r.files[path]
		if !ok {
			return []*FTPOp{nack(req, ErrFileNotFound)}
		}
		if int(req.Offset) > len(data) {
			return []*FTPOp{nack(req, ErrFail)}
		}
		r.files[path] = data[:req.Offset]
		return []*FTPOp{ack(req, nil)}
	case OpCalcFileCRC32:
		data, ok := r.files[path]
		if !ok {
			return []*FTPOp{nack(req, ErrFileNotFound)}
		}
		crc := make([]byte, 4)
		binary.LittleEndian.PutUint32(crc, crc32.ChecksumIEEE(data))
		return []*FTPOp{ack(req, crc)}
	default:
		return []*FTPOp{nack(req, ErrUnknownCommand)}
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetries = 3
	return cfg
}

func newTestClient(remote *mockRemote, cfg *Config) *Client {
	client := NewClient(remote, cfg)
	remote.mu.Lock()
	remote.client = client
	remote.mu.Unlock()
	return client
}

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
