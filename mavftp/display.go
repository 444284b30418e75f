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
	"sort"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

var (
	dirStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sizeStyle = lipgloss.NewStyle().Faint(true)
)

func displayName(entry DirEntry) string {
	if entry.IsDir() {
		return entry.Name + "/"
	}
	return entry.Name
}

func sortEntries(entries []DirEntry) []DirEntry {
	sorted := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == EntrySkip || entry.Name == "." || entry.Name == ".." {
			continue
		}
		sorted = append(sorted, entry)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsDir() != sorted[j].IsDir() {
			return sorted[i].IsDir()
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// formatListing lays the entries out like ls: a grid sized to columns, or one
// entry per line with type and size when long is set. columns <= 0 means unknown.
func formatListing(entries []DirEntry, long, color bool, columns int) []string {
	entries = sortEntries(entries)
	if len(entries) == 0 {
		return nil
	}
	render := func(entry DirEntry, text string) string {
		if color && entry.IsDir() {
			return dirStyle.Render(text)
		}
		return text
	}

	var lines []string
	if long {
		for _, entry := range entries {
			size := "-"
			if !entry.IsDir() {
				size = convertSizeToString(float64(entry.Size))
			}
			size = fmt.Sprintf("%9s", size)
			if color {
				size = sizeStyle.Render(size)
			}
			prefix := fmt.Sprintf("%c %s  ", entry.Type, size)
			name := displayName(entry)
			if columns > 0 {
				if room := columns - ansi.StringWidth(prefix); room > 3 && runewidth.StringWidth(name) > room {
					name = ansi.Truncate(name, room, "...")
				}
			}
			lines = append(lines, prefix+render(entry, name))
		}
		return lines
	}

	width := 0
	for _, entry := range entries {
		if w := runewidth.StringWidth(displayName(entry)); w > width {
			width = w
		}
	}
	width += 2
	perLine := 1
	if columns > 0 && columns/width > 1 {
		perLine = columns / width
	}
	var b strings.Builder
	for i, entry := range entries {
		name := displayName(entry)
		last := (i+1)%perLine == 0 || i == len(entries)-1
		if !last {
			name = runewidth.FillRight(name, width)
		}
		b.WriteString(render(entry, name))
		if last {
			lines = append(lines, strings.TrimRight(b.String(), " "))
			b.Reset()
		}
	}
	return lines
}

func printListing(w io.Writer, entries []DirEntry, long, color bool, columns int) {
	for _, line := range formatListing(entries, long, color, columns) {
		fmt.Fprintln(w, line)
	}
}
