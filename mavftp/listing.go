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
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// EntryType is the type tag of a directory entry.
type EntryType byte

const (
	EntryDirectory EntryType = 'D'
	EntryFile      EntryType = 'F'
	EntrySkip      EntryType = 'S'
)

func (t EntryType) String() string {
	switch t {
	case EntryDirectory:
		return "directory"
	case EntryFile:
		return "file"
	case EntrySkip:
		return "skip"
	default:
		return fmt.Sprintf("EntryType(%q)", byte(t))
	}
}

// DirEntry is one decoded entry of a directory listing.
type DirEntry struct {
	Type EntryType
	Name string
	Size uint64
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool {
	return e.Type == EntryDirectory
}

// ListingError describes one entry that could not be decoded.
type ListingError struct {
	Index  int
	Entry  []byte
	Reason string
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("entry %d %q: %s", e.Index, e.Entry, e.Reason)
}

// countEntries counts the NUL terminated entries of one listing reply, which is
// how far the next ListDirectory request has to advance its offset.
func countEntries(payload []byte) uint32 {
	n := uint32(0)
	for _, part := range bytes.Split(payload, []byte{0}) {
		if len(part) > 0 {
			n++
		}
	}
	return n
}

func decodeName(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	name, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(name)
}

// decodeListing splits a concatenated listing into entries. Malformed entries are
// reported one by one and never stop the entries that follow them.
func decodeListing(raw []byte) ([]DirEntry, []*ListingError) {
	var entries []DirEntry
	var errs []*ListingError
	index := 0
	for _, part := range bytes.Split(raw, []byte{0}) {
		if len(part) == 0 {
			continue
		}
		fail := func(reason string) {
			errs = append(errs, &ListingError{Index: index, Entry: part, Reason: reason})
		}
		switch EntryType(part[0]) {
		case EntrySkip:
			entries = append(entries, DirEntry{Type: EntrySkip, Name: decodeName(part[1:])})
		case EntryDirectory:
			if len(part) == 1 {
				fail("missing name")
				break
			}
			entries = append(entries, DirEntry{Type: EntryDirectory, Name: decodeName(part[1:])})
		case EntryFile:
			sep := bytes.IndexByte(part, '\t')
			if sep < 0 {
				fail("missing size field")
				break
			}
			if sep == 1 {
				fail("missing name")
				break
			}
			size, err := strconv.ParseUint(string(part[sep+1:]), 10, 64)
			if err != nil {
				fail("truncated size field")
				break
			}
			entries = append(entries, DirEntry{Type: EntryFile, Name: decodeName(part[1:sep]), Size: size})
		default:
			fail("missing type tag")
		}
		index++
	}
	return entries, errs
}
