package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/neboloop/skiff/internal/agent/session"
)

// StreamEventType defines the type of streaming event
type StreamEventType string

const (
	EventTypeText     StreamEventType = "text"
	EventTypeToolCall StreamEventType = "tool_call"
	EventTypeError    StreamEventType = "error"
	EventTypeDone     StreamEventType = "done"
)

// StreamEvent represents a streaming response event
type StreamEvent struct {
	Type     StreamEventType   `json:"type"`
	Text     string            `json:"text,omitempty"`
	ToolCall *session.ToolCall `json:"tool_call,omitempty"`
	Error    error             `json:"-"`
}

// ToolDefinition describes a tool available to the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"parameters"`
	Strict      *bool           `json:"strict,omitempty"`
}

// ChatRequest represents a request to a provider. Messages start with the system message.
type ChatRequest struct {
	Messages    []session.Message `json:"messages"`
	Tools       []ToolDefinition  `json:"tools,omitempty"`
	Model       string            `json:"model,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// ChatResponse is a completed assistant turn
type ChatResponse struct {
	Content   string             `json:"content"`
	ToolCalls []session.ToolCall `json:"tool_calls,omitempty"`
}

// HasToolCalls is the agent loop's branch point
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Provider is the capability surface shared by every backend
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai")
	ID() string

	// Flavor returns the tool-schema dialect the backend accepts
	Flavor() Flavor

	// Chat sends a request and waits for the full response
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream sends a request and returns a channel of streaming events.
	// The channel is closed after a Done or Error event.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)

	// Embed returns one vector per input text
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrEmbeddingsUnsupported is returned by backends without an embeddings endpoint
var ErrEmbeddingsUnsupported = errors.New("embeddings not supported by this provider")

// Collect drains a stream into a ChatResponse, calling onToken for each text delta.
// Tool calls written as text by models without native tool support are recovered.
func Collect(events <-chan StreamEvent, onToken func(string)) (*ChatResponse, error) {
	var content strings.Builder
	resp := &ChatResponse{}

	for ev := range events {
		switch ev.Type {
		case EventTypeText:
			content.WriteString(ev.Text)
			if onToken != nil && ev.Text != "" {
				onToken(ev.Text)
			}
		case EventTypeToolCall:
			if ev.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *ev.ToolCall)
			}
		case EventTypeError:
			// drain so the producer goroutine can exit
			for range events {
			}
			if ev.Error == nil {
				return nil, errors.New("stream error")
			}
			return nil, ev.Error
		}
	}

	resp.Content = content.String()
	return withTextToolCalls(resp), nil
}

// withTextToolCalls applies the fallback tool-call parser when no native calls arrived
func withTextToolCalls(resp *ChatResponse) *ChatResponse {
	if resp.HasToolCalls() || resp.Content == "" {
		return resp
	}
	calls, cleaned := ParseToolCallsFromText(resp.Content)
	if len(calls) > 0 {
		resp.ToolCalls = calls
		resp.Content = cleaned
	}
	return resp
}

// schemaMap decodes a tool's parameter schema, defaulting to an empty object schema
func schemaMap(raw json.RawMessage) map[string]any {
	var schema map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &schema); err != nil {
			schema = nil
		}
	}
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schema
}

// argsMap decodes serialized tool-call arguments. Invalid JSON yields an empty map.
func argsMap(arguments string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(arguments) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(arguments), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// toolNameFor finds the tool name for a result by searching earlier assistant turns
func toolNameFor(toolCallID string, msgs []session.Message) string {
	for _, msg := range msgs {
		if msg.Role != session.RoleAssistant {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	return "unknown"
}
