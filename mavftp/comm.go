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
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

var timeNowFunc = time.Now

const kMavftpVersion = "0.3.1"

type mavftpError struct {
	message string
	errType string
	trace   bool
}

var (
	errStopped        = newSimpleMavftpError("Stopped")
	errReceiveTimeout = newSimpleMavftpError("Receive reply timeout")
	errSessionActive  = newSimpleMavftpError("A session is already open")
	errLinkClosed     = newSimpleMavftpError("Link closed")
)

func newMavftpError(message string, errType string, trace bool) *mavftpError {
	if len(errType) > 0 {
		message = fmt.Sprintf("[MavftpError] %s: %s", errType, message)
	}
	err := &mavftpError{message, errType, trace}
	if err.trace {
		err.message = fmt.Sprintf("%s\n%s", err.message, string(debug.Stack()))
	}
	return err
}

func newSimpleMavftpError(message string) *mavftpError {
	return newMavftpError(message, "", false)
}

func simpleMavftpError(format string, a ...any) *mavftpError {
	return newSimpleMavftpError(fmt.Sprintf(format, a...))
}

func (e *mavftpError) Error() string {
	return e.message
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var zstdDecoder, _ = zstd.NewReader(nil)

func encodeBytes(buf []byte) string {
	return base64.StdEncoding.EncodeToString(zstdEncoder.EncodeAll(buf, make([]byte, 0, len(buf)+0x10)))
}

func decodeString(str string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return nil, err
	}
	return zstdDecoder.DecodeAll(b, nil)
}

func writeAll(dst io.Writer, data []byte) error {
	m := 0
	l := len(data)
	for m < l {
		n, err := dst.Write(data[m:])
		if err != nil {
			return newMavftpError(fmt.Sprintf("WriteAll error: %v", err), "", true)
		}
		m += n
	}
	return nil
}

var mavftpConfigPath = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mavftp.conf")
}

// getMavftpConfig looks up `name = value` in ~/.mavftp.conf.
func getMavftpConfig(name string) *string {
	path := mavftpConfigPath()
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		if strings.TrimSpace(line[0:idx]) == name {
			value := strings.TrimSpace(line[idx+1:])
			if len(value) == 0 {
				return nil
			}
			return &value
		}
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
