package ical

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, data string) []string {
	t.Helper()
	var out []string
	r := NewLineReader([]byte(data))
	for {
		line, _, ok := r.Next()
		if !ok {
			return out
		}
		out = append(out, line)
	}
}

func TestLineReaderFoldingRoundTrip(t *testing.T) {
	// One logical line split across several continuation lines must
	// reconstruct the exact original content.
	content := "DESCRIPTION:" + strings.Repeat("abcdefghij", 20)

	var folded strings.Builder
	for i, c := range []byte(content) {
		if i > 0 && i%40 == 0 {
			folded.WriteString("\r\n ")
		}
		folded.WriteByte(c)
	}
	folded.WriteString("\r\n")

	lines := readAll(t, folded.String())
	require.Len(t, lines, 1)
	assert.Equal(t, content, lines[0])
}

func TestLineReaderTerminators(t *testing.T) {
	lines := readAll(t, "A:1\r\nB:2\nC:3")
	assert.Equal(t, []string{"A:1", "B:2", "C:3"}, lines)
}

func TestLineReaderTabContinuation(t *testing.T) {
	lines := readAll(t, "SUMMARY:part one\n\tpart two\n")
	assert.Equal(t, []string{"SUMMARY:part onepart two"}, lines)
}

func TestLineReaderLineNumbers(t *testing.T) {
	r := NewLineReader([]byte("A:1\nB:2\n continues\nC:3\n"))

	_, num, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, 1, num)

	line, num, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, "B:2continues", line)
	assert.Equal(t, 2, num)

	_, num, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, 4, num)

	_, _, ok = r.Next()
	assert.False(t, ok)
}

func TestLineReaderEmptyInput(t *testing.T) {
	assert.Empty(t, readAll(t, ""))
}
