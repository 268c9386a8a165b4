package agentloop

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOutputShortUnchanged(t *testing.T) {
	assert.Equal(t, "hello", TruncateOutput("hello", 10))
	assert.Equal(t, "hello", TruncateOutput("hello", 0))
}

func TestTruncateOutputHeadTail(t *testing.T) {
	out := TruncateOutput(strings.Repeat("a", 50)+strings.Repeat("b", 50), 20)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 10)))
	assert.Contains(t, out, "80 characters were removed from the middle")
}

func TestTruncateOutputKeepsRunesWhole(t *testing.T) {
	// Each "é" is two bytes, so a byte cut at 5 would split one.
	in := strings.Repeat("é", 20)
	out := TruncateOutput(in, 10)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(out, "éé\n\n"))
	assert.True(t, strings.HasSuffix(out, "\n\néé"))
	assert.Contains(t, out, "32 characters were removed from the middle")
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = string(rune('a' + i))
	}
	out := TruncateLines(strings.Join(lines, "\n"), 4)
	assert.Equal(t, "a\nb\n[... 6 lines omitted ...]\ni\nj", out)
	assert.Equal(t, "a\nb", TruncateLines("a\nb", 4))
}

func TestTruncateActionOutputDefaults(t *testing.T) {
	long := strings.Repeat("x\n", 1000)
	out := TruncateActionOutput(long, 0, 0)
	assert.Contains(t, out, "lines omitted")
	assert.LessOrEqual(t, strings.Count(out, "\n"), DefaultOutputLineLimit+2)
}
