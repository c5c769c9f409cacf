package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCallsFromTextTags(t *testing.T) {
	text := "Let me look.\n<toolcall>{\"name\": \"read_file\", \"arguments\": {\"path\": \"a.txt\"}}</toolcall>\n"
	calls, cleaned := ParseToolCallsFromText(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "tc_0", calls[0].ID)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.JSONEq(t, `{"path":"a.txt"}`, calls[0].Arguments)
	assert.Equal(t, "Let me look.", cleaned)
}

func TestParseToolCallsFromTextUnderscoreTags(t *testing.T) {
	text := "<tool_call>{\"name\": \"a\", \"parameters\": {\"x\": 1,}}</tool_call><tool_call>{\"name\": \"b\"}</tool_call>"
	calls, cleaned := ParseToolCallsFromText(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.JSONEq(t, `{"x":1}`, calls[0].Arguments)
	assert.Equal(t, "tc_1", calls[1].ID)
	assert.Equal(t, "", cleaned)
}

func TestParseToolCallsFromTextFenced(t *testing.T) {
	text := "Running it:\n```json\n{\"name\": \"exec\", \"arguments\": \"{\\\"command\\\": \\\"ls\\\"}\"}\n```\nDone"
	calls, cleaned := ParseToolCallsFromText(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "exec", calls[0].Name)
	assert.Equal(t, `{"command": "ls"}`, calls[0].Arguments)
	assert.Equal(t, "Running it:\n\nDone", cleaned)
}

func TestParseToolCallsFromTextIgnoresOtherBlocks(t *testing.T) {
	text := "```go\n{\"name\": \"x\"}\n```\n```json\n{\"value\": 1}\n```"
	calls, cleaned := ParseToolCallsFromText(text)
	assert.Empty(t, calls)
	assert.Equal(t, text, cleaned)
}

func TestParseToolCallsFromTextBracesInStrings(t *testing.T) {
	text := `<toolcall>{"name": "write_file", "arguments": {"content": "func() { }"}}</toolcall>`
	calls, _ := ParseToolCallsFromText(text)
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"content":"func() { }"}`, calls[0].Arguments)
}

func TestWithTextToolCallsKeepsNative(t *testing.T) {
	resp := &ChatResponse{Content: "<toolcall>{\"name\": \"a\"}</toolcall>"}
	resp.ToolCalls = nil
	out := withTextToolCalls(resp)
	require.Len(t, out.ToolCalls, 1)

	native := &ChatResponse{Content: "<toolcall>{\"name\": \"a\"}</toolcall>"}
	native.ToolCalls = append(native.ToolCalls, out.ToolCalls[0])
	native.ToolCalls[0].Name = "native"
	out = withTextToolCalls(native)
	assert.Equal(t, "native", out.ToolCalls[0].Name)
	assert.Contains(t, out.Content, "<toolcall>")
}
