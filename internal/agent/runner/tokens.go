package runner

import "github.com/neboloop/skiff/internal/agent/session"

const (
	// CharsPerTokenEstimate is the chars-per-token ratio every budget decision uses
	CharsPerTokenEstimate = 4

	messageOverheadTokens  = 4
	toolCallOverheadTokens = 8
)

// EstimateTokens approximates the token count of text as ceil(len/4)
func EstimateTokens(text string) int {
	return (len(text) + CharsPerTokenEstimate - 1) / CharsPerTokenEstimate
}

// EstimateMessage adds per-message and per-tool-call overhead to the content estimate
func EstimateMessage(m session.Message) int {
	n := EstimateTokens(m.Content) + messageOverheadTokens
	for _, tc := range m.ToolCalls {
		n += EstimateTokens(tc.Name) + EstimateTokens(tc.Arguments) + toolCallOverheadTokens
	}
	return n
}

// EstimateMessages sums EstimateMessage over messages
func EstimateMessages(messages []session.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessage(m)
	}
	return total
}
