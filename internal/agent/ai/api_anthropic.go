package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/logging"
)

const defaultMaxTokens = 8192

// AnthropicProvider implements the Anthropic Messages API using the official SDK
type AnthropicProvider struct {
	client anthropic.Client
	name   string
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(name, apiKey, baseURL, model string) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if name == "" {
		name = "anthropic"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		name:   name,
		model:  model,
	}
}

// ID returns the provider identifier
func (p *AnthropicProvider) ID() string {
	return p.name
}

// Flavor is always anthropic; schemas pass through untouched
func (p *AnthropicProvider) Flavor() Flavor {
	return FlavorAnthropic
}

func (p *AnthropicProvider) buildParams(req *ChatRequest) anthropic.MessageNewParams {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	system, messages := buildAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(defaultMaxTokens),
		Messages:  messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	params.Temperature = anthropic.Float(req.Temperature)
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			schema := schemaMap(tool.InputSchema)
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			}
			if required, ok := schema["required"].([]any); ok {
				reqStrings := make([]string, 0, len(required))
				for _, r := range required {
					if s, ok := r.(string); ok {
						reqStrings = append(reqStrings, s)
					}
				}
				toolParam.InputSchema.Required = reqStrings
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	logging.Debugf("[Anthropic] %s: model=%s messages=%d tools=%d", p.name, model, len(messages), len(req.Tools))
	return params
}

// Chat sends a non-streaming request
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, NewProviderError(p.name, err)
	}

	var text strings.Builder
	resp := &ChatResponse{}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := string(b.Input)
			if args == "" {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, session.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	resp.Content = text.String()
	return resp, nil
}

// Stream sends a request and returns streaming events
func (p *AnthropicProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	events := make(chan StreamEvent, 100)
	go p.handleStream(stream, events)
	return events, nil
}

// Embed is not offered by the Messages API
func (p *AnthropicProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrEmbeddingsUnsupported
}

// buildAnthropicMessages splits out the system prompt and converts the rest.
// Consecutive tool results are merged into a single user turn.
func buildAnthropicMessages(msgs []session.Message) (string, []anthropic.MessageParam) {
	var (
		system  []string
		result  []anthropic.MessageParam
		pending []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(pending) > 0 {
			result = append(result, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleSystem:
			system = append(system, msg.Content)

		case session.RoleUser:
			flush()
			// empty text blocks are rejected
			if msg.Content == "" {
				continue
			}
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case session.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: argsMap(tc.Arguments),
					},
				})
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}

		case session.RoleTool:
			isErr := strings.HasPrefix(msg.Content, "[error]")
			pending = append(pending, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isErr))
		}
	}
	flush()

	return strings.Join(system, "\n\n"), result
}

// handleStream processes the streaming response
func (p *AnthropicProvider) handleStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- StreamEvent) {
	defer close(events)
	defer stream.Close()

	var currentToolID string
	var currentToolName string
	var inputBuffer strings.Builder

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			cb := event.AsContentBlockStart()
			if toolUse, ok := cb.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				currentToolID = toolUse.ID
				currentToolName = toolUse.Name
				inputBuffer.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch d := delta.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				events <- StreamEvent{Type: EventTypeText, Text: d.Text}
			case anthropic.InputJSONDelta:
				inputBuffer.WriteString(d.PartialJSON)
			}

		case "content_block_stop":
			if currentToolID != "" {
				args := inputBuffer.String()
				if !json.Valid([]byte(args)) {
					args = "{}"
				}
				events <- StreamEvent{
					Type:     EventTypeToolCall,
					ToolCall: &session.ToolCall{ID: currentToolID, Name: currentToolName, Arguments: args},
				}
				currentToolID = ""
				currentToolName = ""
				inputBuffer.Reset()
			}

		case "message_stop":
			events <- StreamEvent{Type: EventTypeDone}
			return

		case "error":
			events <- StreamEvent{
				Type:  EventTypeError,
				Error: NewProviderError(p.name, fmt.Errorf("stream error: %s", event.RawJSON())),
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		logging.Warnf("[Anthropic] %s stream error: %v", p.name, err)
		events <- StreamEvent{Type: EventTypeError, Error: NewProviderError(p.name, err)}
		return
	}
	events <- StreamEvent{Type: EventTypeDone}
}
