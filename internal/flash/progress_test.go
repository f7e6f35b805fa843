package flash

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressLine(t *testing.T) {
	bar := NewProgressBar(nil, 2)

	tests := []struct {
		index, written, total int
		want                  string
	}{
		{0, 0, 100, "File 1/2 [--------------------] 0% "},
		{0, 50, 100, "File 1/2 [██████████----------] 50% "},
		{0, 33, 100, "File 1/2 [███████-------------] 33% "},
		{1, 100, 100, "File 2/2 [████████████████████] 100% "},
		{1, 0, 0, "File 2/2 [████████████████████] 100% "},
		{1, 7, 3, "File 2/2 [████████████████████] 100% "},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, bar.Line(tt.index, tt.written, tt.total))
	}
}

func TestProgressSuppressesIdenticalRenders(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, 1)

	bar.OnProgress(0, 0, 1000)
	bar.OnProgress(0, 1, 1000) // still 0%
	bar.OnProgress(0, 2, 1000)
	bar.OnProgress(0, 500, 1000)
	bar.OnProgress(0, 500, 1000)

	assert.Equal(t, 2, strings.Count(out.String(), "\r"))
}

func TestProgressPadsShorterLine(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, 2)

	bar.OnProgress(0, 10, 10)
	out.Reset()
	bar.OnProgress(1, 0, 10)

	assert.Equal(t, "\rFile 2/2 [--------------------] 0%   ", out.String())
}

func TestProgressFinish(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, 1)

	bar.Finish()
	assert.Empty(t, out.String())

	bar.OnProgress(0, 1, 1)
	bar.Finish()
	assert.True(t, strings.HasSuffix(out.String(), "100% \n"))
}
