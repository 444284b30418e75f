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
	"strconv"
	"time"
)

const (
	kDefaultTimeout      = 2 * time.Second
	kDefaultMaxRetries   = 5
	kDefaultRetryBackoff = 200 * time.Millisecond
)

// Config tunes the protocol engine. Start from DefaultConfig: a zero Timeout,
// RetryBackoff or ChunkSize selects its default, but a zero MaxRetries means no
// retransmission and a false BurstRead reads with ReadFile only.
type Config struct {
	// Timeout is how long to wait for the reply of one request before retransmitting it.
	Timeout time.Duration
	// MaxRetries bounds the retransmissions of one request, after the first attempt.
	MaxRetries int
	// RetryBackoff is the base delay before retrying a NoSessionsAvailable Nack.
	RetryBackoff time.Duration
	// BurstRead selects BurstReadFile for downloads instead of chunked ReadFile.
	BurstRead bool
	// ChunkSize is the number of data bytes per read or write request, at most 239.
	ChunkSize int
	// Logger receives protocol events. nil discards them.
	Logger Logger
	// OnProgress, when set, is called after each chunk of a file transfer.
	// total is 0 when the remote did not advertise the file size.
	OnProgress func(path string, transferred, total int64)
}

// DefaultConfig returns the configuration used when NewClient is given nil.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      kDefaultTimeout,
		MaxRetries:   kDefaultMaxRetries,
		RetryBackoff: kDefaultRetryBackoff,
		BurstRead:    true,
		ChunkSize:    kMaxPayloadSize,
	}
}

func (c *Config) normalize() *Config {
	cfg := DefaultConfig()
	if c == nil {
		cfg.Logger = noopLogger{}
		return cfg
	}
	*cfg = *c
	if cfg.Timeout <= 0 {
		cfg.Timeout = kDefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = kDefaultRetryBackoff
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > kMaxPayloadSize {
		cfg.ChunkSize = kMaxPayloadSize
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return cfg
}

// chunkSize is the `-B` flag value: 1 to 239 bytes, "max" for 239.
type chunkSize struct {
	Size int
}

func (c *chunkSize) UnmarshalText(buf []byte) error {
	str := string(buf)
	if str == "max" {
		c.Size = kMaxPayloadSize
		return nil
	}
	size, err := strconv.Atoi(str)
	if err != nil {
		return fmt.Errorf("invalid chunk size %s", str)
	}
	if size < 1 {
		return fmt.Errorf("less than 1")
	}
	if size > kMaxPayloadSize {
		return fmt.Errorf("greater than %d", kMaxPayloadSize)
	}
	c.Size = size
	return nil
}
