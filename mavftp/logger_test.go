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
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLogger(t *testing.T) {
	assert := assert.New(t)
	var buf bytes.Buffer
	logger := newConsoleLogger(&buf, false)
	logger.Debug("hidden %d", 1)
	logger.Info("info %d", 2)
	logger.Error("error %s", "three")
	assert.Equal("info 2\nerror three\n", buf.String())

	buf.Reset()
	logger = newConsoleLogger(&buf, true)
	logger.Debug("shown %d", 1)
	assert.Equal("shown 1\n", buf.String())
}

func TestTraceLogger(t *testing.T) {
	assert := assert.New(t)
	mockTimeNow(nil, 1646564135000)
	var console bytes.Buffer
	logger, err := newTraceLogger(t.TempDir(), newConsoleLogger(&console, false))
	require.NoError(t, err)
	name := logger.fileName()
	assert.True(strings.HasPrefix(name[strings.LastIndexAny(name, `/\`)+1:], "mavftp_"))

	record := (&FTPOp{Seq: 7, Opcode: OpOpenFileRO, Size: 2, Payload: []byte("/a")}).Encode()
	logger.writeTraceLog(record, "send")
	logger.Info("opened %s", "/a")
	logger.Debug("details")
	logger.close()
	logger.close()
	logger.writeTraceLog(record, "send")
	assert.Equal("", logger.fileName())
	assert.Equal("opened /a\n", console.String())

	file, err := os.Open(name)
	require.NoError(t, err)
	defer file.Close()
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "[send]"))
	data, err := decodeString(strings.TrimPrefix(lines[0], "[send]"))
	require.NoError(t, err)
	assert.Equal(record, data)
	assert.True(strings.HasPrefix(lines[1], "[info] "))
	assert.True(strings.HasSuffix(lines[1], ": opened /a"))
	assert.True(strings.HasPrefix(lines[2], "[debug] "))
}

func TestClientTracesRecords(t *testing.T) {
	assert := assert.New(t)
	logger, err := newTraceLogger(t.TempDir(), nil)
	require.NoError(t, err)
	name := logger.fileName()
	remote := newMockRemote(t)
	cfg := testConfig()
	cfg.Logger = logger
	client := newTestClient(remote, cfg)

	assert.True(client.CreateDirectory(t.Context(), "/x").OK())
	logger.close()

	content, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(1, strings.Count(string(content), "[send]"))
	assert.Equal(1, strings.Count(string(content), "[recv]"))
}
