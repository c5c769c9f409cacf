package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neboloop/skiff/internal/agent/session"
)

// ParseToolCallsFromText recovers tool calls that a model wrote into its text
// instead of the tool_calls field. Formats are tried in order and the first one
// that yields calls wins:
//
//	<toolcall>{"name": ..., "arguments": {...}}</toolcall>
//	<tool_call>{...}</tool_call>
//	```json / ```tool / untagged fenced block holding an object with "name"
//
// IDs are synthesized as tc_<index>. The returned text has the matched
// tags or blocks removed.
func ParseToolCallsFromText(text string) ([]session.ToolCall, string) {
	for _, tags := range [][2]string{{"<toolcall>", "</toolcall>"}, {"<tool_call>", "</tool_call>"}} {
		if calls := parseTagged(text, tags[0], tags[1]); len(calls) > 0 {
			return calls, cleanContent(stripTagged(text, tags[0], tags[1]))
		}
	}
	calls, spans := parseFenced(text)
	if len(calls) == 0 {
		return nil, text
	}
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(text[last:sp[0]])
		last = sp[1]
	}
	b.WriteString(text[last:])
	return calls, cleanContent(b.String())
}

func parseTagged(text, open, close string) []session.ToolCall {
	var calls []session.ToolCall
	pos := 0
	for pos < len(text) {
		start := strings.Index(text[pos:], open)
		if start < 0 {
			break
		}
		contentStart := pos + start + len(open)
		end := strings.Index(text[contentStart:], close)
		if end < 0 {
			break
		}
		inner := text[contentStart : contentStart+end]
		if obj, ok := decodeFirstObject(inner); ok {
			if tc, ok := toolCallFromObject(obj, len(calls)); ok {
				calls = append(calls, tc)
			}
		}
		pos = contentStart + end + len(close)
	}
	return calls
}

func stripTagged(text, open, close string) string {
	for {
		s := strings.Index(text, open)
		if s < 0 {
			return text
		}
		e := strings.Index(text[s:], close)
		if e < 0 {
			return text
		}
		text = text[:s] + text[s+e+len(close):]
	}
}

// parseFenced returns calls from fenced code blocks plus the byte spans of the blocks used
func parseFenced(text string) ([]session.ToolCall, [][2]int) {
	var (
		calls []session.ToolCall
		spans [][2]int
	)
	pos := 0
	for pos < len(text) {
		fs := strings.Index(text[pos:], "```")
		if fs < 0 {
			break
		}
		fenceStart := pos + fs
		nl := strings.IndexByte(text[fenceStart:], '\n')
		if nl < 0 {
			break
		}
		lineEnd := fenceStart + nl
		lang := strings.TrimSpace(text[fenceStart+3 : lineEnd])

		fe := strings.Index(text[lineEnd:], "\n```")
		if fe < 0 {
			pos = lineEnd
			continue
		}
		fenceEnd := lineEnd + fe
		block := text[lineEnd+1 : fenceEnd]
		pos = fenceEnd + 4

		if lang != "" && lang != "json" && lang != "tool" {
			continue
		}
		obj, ok := decodeFirstObject(block)
		if !ok {
			continue
		}
		if _, has := obj["name"]; !has {
			continue
		}
		if tc, ok := toolCallFromObject(obj, len(calls)); ok {
			calls = append(calls, tc)
			spans = append(spans, [2]int{fenceStart, pos})
		}
	}
	return calls, spans
}

// decodeFirstObject finds the first balanced {...} in s and decodes it,
// tolerating trailing commas
func decodeFirstObject(s string) (map[string]any, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}
	end := objectEnd(s, start)
	if end < 0 {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(fixTrailingCommas(s[start:end+1])), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// objectEnd returns the index of the brace closing the object opened at s[start]
func objectEnd(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case c == '\\' && inStr:
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func fixTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case c == '\\' && inStr:
			esc = true
		case c == '"':
			inStr = !inStr
		case !inStr && c == ',':
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func toolCallFromObject(obj map[string]any, idx int) (session.ToolCall, bool) {
	name, _ := obj["name"].(string)
	if name == "" {
		return session.ToolCall{}, false
	}
	tc := session.ToolCall{ID: fmt.Sprintf("tc_%d", idx), Name: name}
	for _, key := range []string{"arguments", "parameters"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr {
			tc.Arguments = s
		} else if data, err := json.Marshal(v); err == nil {
			tc.Arguments = string(data)
		}
		break
	}
	return tc, true
}

func cleanContent(s string) string {
	return strings.TrimRight(s, " \n")
}
