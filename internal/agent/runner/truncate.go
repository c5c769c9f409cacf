package runner

import (
	"fmt"
	"unicode/utf8"
)

// boundarySearch is how far a cut point may move to land on a newline
const boundarySearch = 200

// TruncateAtBoundary keeps the first head and last tail characters of text,
// snapping both cuts to a nearby newline, with a marker between them.
// When head+tail exceeds maxChars the split becomes 2/3 head, 1/3 tail.
func TruncateAtBoundary(text string, maxChars, head, tail int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	if head <= 0 || tail <= 0 || head+tail > maxChars {
		head = maxChars * 2 / 3
		tail = maxChars / 3
	}

	headEnd := head
	for i := head; i > head-boundarySearch && i > 0; i-- {
		if text[i] == '\n' {
			headEnd = i + 1
			break
		}
	}

	tailStart := len(text) - tail
	for i := tailStart; i < tailStart+boundarySearch && i < len(text); i++ {
		if text[i] == '\n' {
			tailStart = i + 1
			break
		}
	}
	headEnd = runeStart(text, headEnd)
	tailStart = runeStart(text, tailStart)
	if tailStart < headEnd {
		tailStart = headEnd
	}

	kept := headEnd + len(text) - tailStart
	out := text[:headEnd] + fmt.Sprintf("\n...[trimmed %d chars → %d]...\n", len(text), kept) + text[tailStart:]
	if len(out) >= len(text) {
		return text
	}
	return out
}

// runeStart moves i back to the start of the UTF-8 sequence containing it
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
