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
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-runewidth"
)

func getEllipsisString(str string, max int) (string, int) {
	str = ansi.Truncate(str, max, "...")
	return str, runewidth.StringWidth(str)
}

func convertSizeToString(size float64) string {
	unit := "B"
	for _, next := range []string{"KB", "MB", "GB", "TB"} {
		if size < 1024 {
			break
		}
		size = size / 1024
		unit = next
	}

	if size >= 100 {
		return fmt.Sprintf("%.0f %s", size, unit)
	} else if size >= 10 {
		return fmt.Sprintf("%.1f %s", size, unit)
	} else {
		return fmt.Sprintf("%.2f %s", size, unit)
	}
}

func convertTimeToString(seconds float64) string {
	var b strings.Builder
	if seconds >= 3600 {
		hour := math.Floor(seconds / 3600)
		b.WriteString(fmt.Sprintf("%.0f:", hour))
		seconds -= (hour * 3600)
	}

	minute := math.Floor(seconds / 60)
	if minute >= 10 {
		b.WriteString(fmt.Sprintf("%.0f:", minute))
	} else {
		b.WriteString(fmt.Sprintf("0%.0f:", minute))
	}

	second := seconds - (minute * 60)
	if second >= 10 {
		b.WriteString(fmt.Sprintf("%.0f", second))
	} else {
		b.WriteString(fmt.Sprintf("0%.0f", second))
	}

	return b.String()
}

const kSpeedArraySize = 30

// recentSpeed averages over the last kSpeedArraySize steps only.
type recentSpeed struct {
	speedCnt  int
	speedIdx  int
	timeArray [kSpeedArraySize]time.Time
	stepArray [kSpeedArraySize]int64
}

func (s *recentSpeed) initFirstStep(now time.Time) {
	s.timeArray[0] = now
	s.stepArray[0] = 0
	s.speedCnt = 1
	s.speedIdx = 1
}

func (s *recentSpeed) getSpeed(step int64, now time.Time) float64 {
	var speed float64
	if s.speedCnt <= kSpeedArraySize {
		s.speedCnt++
		speed = float64(step-s.stepArray[0]) / (float64(now.Sub(s.timeArray[0])) / float64(time.Second))
	} else {
		speed = float64(step-s.stepArray[s.speedIdx]) / (float64(now.Sub(s.timeArray[s.speedIdx])) / float64(time.Second))
	}

	s.timeArray[s.speedIdx] = now
	s.stepArray[s.speedIdx] = step

	s.speedIdx++
	if s.speedIdx >= kSpeedArraySize {
		s.speedIdx = 0
	}

	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return -1
	}
	return speed
}

// textProgressBar draws one line per transfer on a terminal.
type textProgressBar struct {
	mu             sync.Mutex
	writer         io.Writer
	columns        atomic.Int32
	fileCount      int
	fileIdx        int
	fileName       string
	fileSize       int64
	fileStep       int64
	lastUpdateTime *time.Time
	firstWrite     bool
	finished       bool
	recentSpeed    recentSpeed
	colorA         *colorful.Color
	colorB         *colorful.Color
}

// newTextProgressBar parses colorPair as two hex colors, e.g. "B14FFF 00FFA3",
// for a gradient bar. Any other value selects the plain cyan bar.
func newTextProgressBar(writer io.Writer, columns int32, colorPair string) *textProgressBar {
	progress := &textProgressBar{writer: writer, firstWrite: true}
	progress.columns.Store(columns)
	colors := strings.Fields(colorPair)
	if len(colors) == 2 {
		if colorA, err := colorful.Hex("#" + colors[0]); err == nil {
			progress.colorA = &colorA
		}
		if colorB, err := colorful.Hex("#" + colors[1]); err == nil {
			progress.colorB = &colorB
		}
	}
	return progress
}

func (p *textProgressBar) setTerminalColumns(columns int32) {
	if p == nil {
		return
	}
	p.columns.Store(columns)
}

func (p *textProgressBar) onNum(num int64) {
	if p == nil {
		return
	}
	p.fileCount = int(num)
	p.hideCursor()
}

func (p *textProgressBar) onName(name string) {
	if p == nil {
		return
	}
	p.fileName = name
	p.fileIdx++
	now := timeNowFunc()
	p.recentSpeed.initFirstStep(now)
	p.fileSize = 0
	p.fileStep = -1
	p.lastUpdateTime = nil
	p.firstWrite = true
	p.finished = false
}

func (p *textProgressBar) onSize(size int64) {
	if p == nil {
		return
	}
	p.fileSize = size
}

func (p *textProgressBar) onStep(step int64) {
	if p == nil {
		return
	}
	if step <= p.fileStep {
		return
	}
	p.fileStep = step
	p.showProgress()
}

func (p *textProgressBar) onDone() {
	if p == nil {
		return
	}
	if p.fileSize == 0 && p.fileStep <= 0 {
		p.fileStep = 0
	} else if p.fileStep < p.fileSize {
		p.fileStep = p.fileSize
	}
	p.lastUpdateTime = nil
	p.showProgress()
	p.writeProgress("\r\n")
	p.finished = true
}

func (p *textProgressBar) finish() {
	if p == nil {
		return
	}
	p.showCursor()
}

// update adapts the bar to Config.OnProgress. A new path starts a new line.
func (p *textProgressBar) update(path string, transferred, total int64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fileIdx == 0 || p.finished || path != p.fileName {
		if p.fileIdx > 0 && !p.finished {
			p.onDone()
		}
		p.onName(path)
	}
	if total > 0 && total != p.fileSize {
		p.onSize(total)
	}
	p.onStep(transferred)
}

func (p *textProgressBar) done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fileIdx > 0 && !p.finished {
		p.onDone()
	}
}

func (p *textProgressBar) hideCursor() {
	p.writeProgress("\x1b[?25l")
}

func (p *textProgressBar) showCursor() {
	p.writeProgress("\x1b[?25h")
}

func (p *textProgressBar) writeProgress(progress string) {
	_ = writeAll(p.writer, []byte(progress))
}

func (p *textProgressBar) showProgress() {
	now := timeNowFunc()
	if p.lastUpdateTime != nil && now.Sub(*p.lastUpdateTime) < 200*time.Millisecond {
		return
	}
	p.lastUpdateTime = &now

	percentage := "100%"
	if p.fileSize != 0 {
		percentage = fmt.Sprintf("%.0f%%", math.Round(float64(p.fileStep)*100.0/float64(p.fileSize)))
	}
	total := convertSizeToString(float64(p.fileStep))
	speed := p.recentSpeed.getSpeed(p.fileStep, now)
	speedStr := "--- B/s"
	etaStr := "--- ETA"
	if speed > 0 {
		speedStr = fmt.Sprintf("%s/s", convertSizeToString(speed))
		if p.fileSize >= p.fileStep {
			etaStr = fmt.Sprintf("%s ETA", convertTimeToString(math.Round(float64(p.fileSize-p.fileStep)/speed)))
		}
	}
	progressText := p.getProgressText(percentage, total, speedStr, etaStr)

	if p.firstWrite {
		p.firstWrite = false
		p.writeProgress(progressText)
		return
	}
	p.writeProgress(fmt.Sprintf("\r%s", progressText))
}

func (p *textProgressBar) getProgressText(percentage, total, speed, eta string) string {
	const barMinLength = 24

	left := p.fileName
	if p.fileCount > 1 {
		left = fmt.Sprintf("(%d/%d) %s", p.fileIdx, p.fileCount, p.fileName)
	}
	leftLength := runewidth.StringWidth(left)
	right := fmt.Sprintf(" %s | %s | %s | %s", percentage, total, speed, eta)
	fits := func() bool {
		return int(p.columns.Load())-leftLength-len(right) >= barMinLength
	}

	// shrink the name and drop fields until the bar has room
	steps := []func(){
		func() {
			if leftLength > 50 {
				left, leftLength = getEllipsisString(left, 50)
			}
		},
		func() {
			if leftLength > 40 {
				left, leftLength = getEllipsisString(left, 40)
			}
		},
		func() { right = fmt.Sprintf(" %s | %s | %s", percentage, speed, eta) },
		func() {
			if leftLength > 30 {
				left, leftLength = getEllipsisString(left, 30)
			}
		},
		func() { right = fmt.Sprintf(" %s | %s", percentage, eta) },
		func() { right = fmt.Sprintf(" %s", percentage) },
		func() {
			if leftLength > 20 {
				left, leftLength = getEllipsisString(left, 20)
			}
		},
		func() { left, leftLength = "", 0 },
	}
	for _, step := range steps {
		if fits() {
			break
		}
		step()
	}

	barLength := int(p.columns.Load()) - len(right)
	if leftLength > 0 {
		barLength -= (leftLength + 1)
		left += " "
	}

	return strings.TrimSpace(left + p.getProgressBar(barLength) + right)
}

func (p *textProgressBar) getProgressBar(length int) string {
	if length < 12 {
		return ""
	}
	totalSize := length - 2
	fullSize := totalSize
	if p.fileSize != 0 {
		fullSize = int(math.Round((float64(totalSize) * float64(p.fileStep)) / float64(p.fileSize)))
		fullSize = minInt(fullSize, totalSize)
	}
	emptySize := totalSize - fullSize
	if p.colorA == nil || p.colorB == nil {
		return fmt.Sprintf("[\x1b[36m%s%s\x1b[0m]",
			strings.Repeat("█", fullSize), strings.Repeat("░", emptySize))
	}
	var buf strings.Builder
	buf.WriteString("[")
	for i := 0; i < fullSize; i++ {
		color := p.colorA.BlendLuv(*p.colorB, float64(i)/float64(totalSize))
		render := lipgloss.NewStyle().Foreground(lipgloss.Color(color.Hex()))
		buf.WriteString(render.Render("█"))
	}
	buf.WriteString(strings.Repeat("░", emptySize))
	buf.WriteString("]")
	return buf.String()
}
