package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits for code output fed back to the model. Characters are cut first,
// then lines.
const (
	DefaultOutputCharLimit = 30000
	DefaultOutputLineLimit = 256
)

// TruncateOutput keeps the head and tail of output within maxChars and says
// how much was dropped in a marker the model can read. Cuts fall on rune
// boundaries. maxChars <= 0 disables the cap.
func TruncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	keep := maxChars / 2
	head := runeFloor(output, keep)
	tail := runeCeil(output, len(output)-keep)
	removed := tail - head

	marker := fmt.Sprintf("\n\n[output truncated: %d characters were removed from the middle. "+
		"If you need specific parts, print less or write the result to a file and read it back in pieces.]\n\n", removed)
	return output[:head] + marker + output[tail:]
}

// runeFloor moves i back to the start of the rune containing it.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i forward to the next rune start.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateActionOutput applies the full pipeline: characters first to bound
// pathological output, then lines for readability. Non-positive limits fall
// back to the defaults.
func TruncateActionOutput(output string, charLimit, lineLimit int) string {
	if charLimit <= 0 {
		charLimit = DefaultOutputCharLimit
	}
	if lineLimit <= 0 {
		lineLimit = DefaultOutputLineLimit
	}
	return TruncateLines(TruncateOutput(output, charLimit), lineLimit)
}
