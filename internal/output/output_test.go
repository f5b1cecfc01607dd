package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BufferHasNoColor(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Indexed 3 files")

	assert.False(t, w.ColorEnabled())
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "✓ Indexed 3 files")
}

func TestWriter_ForcedColor(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)

	w.Error("Qdrant unreachable")

	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "Qdrant unreachable")
}

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"warning", func(w *Writer) { w.Warningf("%d files skipped", 2) }, "! 2 files skipped\n"},
		{"error", func(w *Writer) { w.Errorf("failed: %s", "x") }, "✗ failed: x\n"},
		{"no icon", func(w *Writer) { w.Status("", "detail") }, "   detail\n"},
		{"key value", func(w *Writer) { w.KeyValue("documents", 4) }, "  documents:             4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(NewWithColor(buf, false))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Code_IndentsEachLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Code("Test Name: CBC\nHemoglobin 13.5 g/dL\n")

	assert.Equal(t, "    Test Name: CBC\n    Hemoglobin 13.5 g/dL\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	require.NoError(t, w.JSON(map[string]int{"documents": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["documents"])
}

func TestWriter_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Progress(5, 10, "embedding")
	assert.Contains(t, buf.String(), "50%")
	assert.False(t, strings.HasSuffix(buf.String(), "\n"))

	w.Progress(10, 10, "done")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	buf.Reset()
	w.Progress(1, 0, "ignored")
	assert.Empty(t, buf.String())
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(0, 10, 10))
	assert.Equal(t, strings.Repeat("█", 5)+strings.Repeat("░", 5), renderProgressBar(5, 10, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderProgressBar(20, 10, 10))
}
