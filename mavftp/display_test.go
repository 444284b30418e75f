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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testEntries() []DirEntry {
	return []DirEntry{
		{Type: EntryFile, Name: "params.parm", Size: 2048},
		{Type: EntrySkip},
		{Type: EntryDirectory, Name: "."},
		{Type: EntryDirectory, Name: ".."},
		{Type: EntryFile, Name: "a.txt", Size: 5},
		{Type: EntryDirectory, Name: "logs"},
	}
}

func TestSortEntries(t *testing.T) {
	assert := assert.New(t)
	var names []string
	for _, entry := range sortEntries(testEntries()) {
		names = append(names, displayName(entry))
	}
	assert.Equal([]string{"logs/", "a.txt", "params.parm"}, names)
	assert.Empty(sortEntries(nil))
}

func TestFormatListingLong(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]string{
		"D         -  logs/",
		"F    5.00 B  a.txt",
		"F   2.00 KB  params.parm",
	}, formatListing(testEntries(), true, false, 0))

	assert.Equal([]string{
		"D         -  logs/",
		"F    5.00 B  a.txt",
		"F   2.00 KB  para...",
	}, formatListing(testEntries(), true, false, 20))
}

func TestFormatListingGrid(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]string{"logs/        a.txt        params.parm"}, formatListing(testEntries(), false, false, 80))
	assert.Equal([]string{"logs/        a.txt", "params.parm"}, formatListing(testEntries(), false, false, 30))
	assert.Equal([]string{"logs/", "a.txt", "params.parm"}, formatListing(testEntries(), false, false, 20))
	assert.Equal([]string{"logs/", "a.txt", "params.parm"}, formatListing(testEntries(), false, false, 0))
	assert.Nil(formatListing([]DirEntry{{Type: EntrySkip}}, false, false, 80))
}

func TestPrintListing(t *testing.T) {
	var buf bytes.Buffer
	printListing(&buf, testEntries(), false, false, 0)
	assert.Equal(t, "logs/\na.txt\nparams.parm\n", buf.String())
}
