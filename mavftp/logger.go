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
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Logger receives protocol events. Implementations must be safe for concurrent use.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(format string, args ...any) {}
func (noopLogger) Info(format string, args ...any)  {}
func (noopLogger) Error(format string, args ...any) {}

// consoleLogger prints info and error lines, debug lines only when verbose.
type consoleLogger struct {
	mu      sync.Mutex
	writer  io.Writer
	verbose bool
}

func newConsoleLogger(writer io.Writer, verbose bool) *consoleLogger {
	return &consoleLogger{writer: writer, verbose: verbose}
}

func (l *consoleLogger) log(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = writeAll(l.writer, []byte(fmt.Sprintf(format, args...)+"\n"))
}

func (l *consoleLogger) Debug(format string, args ...any) {
	if l.verbose {
		l.log(format, args...)
	}
}

func (l *consoleLogger) Info(format string, args ...any) {
	l.log(format, args...)
}

func (l *consoleLogger) Error(format string, args ...any) {
	l.log(format, args...)
}

// traceLogger records every record that crosses the link, plus protocol events,
// into a temporary file. Records are written as `[typ]<zstd+base64>` lines.
type traceLogger struct {
	traceLogFile atomic.Pointer[os.File]
	traceLogChan atomic.Pointer[chan []byte]
	closed       sync.WaitGroup
	mu           sync.RWMutex
	next         Logger
}

func newTraceLogger(dir string, next Logger) (*traceLogger, error) {
	file, err := os.CreateTemp(dir, "mavftp_*.log")
	if err != nil {
		return nil, simpleMavftpError("Create trace log file error: %v", err)
	}
	if next == nil {
		next = noopLogger{}
	}
	logger := &traceLogger{next: next}
	ch := make(chan []byte, 10000)
	logger.traceLogChan.Store(&ch)
	logger.traceLogFile.Store(file)
	logger.closed.Add(1)
	go func() {
		defer logger.closed.Done()
		for {
			select {
			case buf, ok := <-ch:
				if !ok {
					_ = file.Sync()
					file.Close()
					return
				}
				_ = writeAll(file, buf)
			case <-time.After(3 * time.Second):
				_ = file.Sync()
			}
		}
	}()
	return logger, nil
}

func (logger *traceLogger) fileName() string {
	if file := logger.traceLogFile.Load(); file != nil {
		return file.Name()
	}
	return ""
}

func (logger *traceLogger) writeTraceLog(buf []byte, typ string) {
	logger.mu.RLock()
	defer logger.mu.RUnlock()
	if ch := logger.traceLogChan.Load(); ch != nil {
		*ch <- []byte(fmt.Sprintf("[%s]%s\n", typ, encodeBytes(buf)))
	}
}

func (logger *traceLogger) writeTextLog(level, format string, args ...any) {
	logger.mu.RLock()
	defer logger.mu.RUnlock()
	if ch := logger.traceLogChan.Load(); ch != nil {
		now := timeNowFunc().Format("2006-01-02 15:04:05.000")
		*ch <- []byte(fmt.Sprintf("[%s] %s: %s\n", level, now, fmt.Sprintf(format, args...)))
	}
}

func (logger *traceLogger) Debug(format string, args ...any) {
	logger.writeTextLog("debug", format, args...)
	logger.next.Debug(format, args...)
}

func (logger *traceLogger) Info(format string, args ...any) {
	logger.writeTextLog("info", format, args...)
	logger.next.Info(format, args...)
}

func (logger *traceLogger) Error(format string, args ...any) {
	logger.writeTextLog("error", format, args...)
	logger.next.Error(format, args...)
}

func (logger *traceLogger) close() {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if ch := logger.traceLogChan.Swap(nil); ch != nil {
		close(*ch)
		logger.closed.Wait()
		logger.traceLogFile.Store(nil)
	}
}
