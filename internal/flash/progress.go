package flash

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"unicode/utf8"
)

const progressCells = 20

// ProgressBar renders write progress as a single, redrawn console line:
//
//	File 1/2 [██████████----------] 50%
//
// A render identical to the previous one is suppressed, and a shorter line is
// padded so no characters of the previous one linger.
type ProgressBar struct {
	out   io.Writer
	files int

	mu   sync.Mutex
	last string
}

func NewProgressBar(out io.Writer, files int) *ProgressBar {
	return &ProgressBar{out: out, files: files}
}

// Line formats the progress of file fileIndex
func (b *ProgressBar) Line(fileIndex, written, total int) string {
	frac := 1.0
	if total > 0 {
		frac = math.Min(math.Max(float64(written)/float64(total), 0), 1)
	}
	filled := int(math.Round(progressCells * frac))
	percent := int(math.Round(frac * 100))

	return fmt.Sprintf("File %d/%d [%s%s] %d%% ",
		fileIndex+1, b.files,
		strings.Repeat("█", filled), strings.Repeat("-", progressCells-filled),
		percent)
}

func (b *ProgressBar) OnProgress(fileIndex, written, total int) {
	line := b.Line(fileIndex, written, total)

	b.mu.Lock()
	defer b.mu.Unlock()

	if line == b.last {
		return
	}
	pad := utf8.RuneCountInString(b.last) - utf8.RuneCountInString(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(b.out, "\r%s%s", line, strings.Repeat(" ", pad))
	b.last = line
}

// Finish ends the progress line if one was drawn
func (b *ProgressBar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last != "" {
		fmt.Fprintln(b.out)
	}
}
