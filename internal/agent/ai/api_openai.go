package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/logging"
)

// OpenAIProvider talks to any OpenAI-compatible endpoint (OpenAI, vLLM,
// llama.cpp, LM Studio, Gemini's OpenAI surface) using the official SDK
type OpenAIProvider struct {
	client         openai.Client
	name           string
	model          string
	embeddingModel string
	flavor         Flavor
}

// NewOpenAIProvider creates a provider. An empty baseURL means api.openai.com.
func NewOpenAIProvider(name, apiKey, baseURL, model string) *OpenAIProvider {
	if apiKey == "" {
		// local servers ignore the key but the header must be well-formed
		apiKey = "sk-no-key"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are owned by the agent loop
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		client:         openai.NewClient(opts...),
		name:           name,
		model:          model,
		embeddingModel: "text-embedding-3-small",
		flavor:         DetectFlavor(baseURL),
	}
}

// SetEmbeddingModel overrides the embeddings model
func (p *OpenAIProvider) SetEmbeddingModel(model string) {
	if model != "" {
		p.embeddingModel = model
	}
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() string {
	return p.name
}

// Flavor is derived from the base URL
func (p *OpenAIProvider) Flavor() Flavor {
	return p.flavor
}

func (p *OpenAIProvider) buildParams(req *ChatRequest) openai.ChatCompletionNewParams {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: buildOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	params.Temperature = openai.Float(req.Temperature)

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			fn := shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  shared.FunctionParameters(schemaMap(tool.InputSchema)),
			}
			if tool.Strict != nil {
				fn.Strict = openai.Bool(*tool.Strict)
			}
			tools = append(tools, openai.ChatCompletionToolParam{Function: fn})
		}
		params.Tools = tools
	}

	logging.Debugf("[OpenAI] %s: model=%s messages=%d tools=%d", p.name, model, len(params.Messages), len(req.Tools))
	return params
}

// Chat sends a non-streaming chat completion request
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, NewProviderError(p.name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, NewProviderError(p.name, fmt.Errorf("provider %s returned no choices", p.name))
	}

	msg := completion.Choices[0].Message
	resp := &ChatResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		resp.ToolCalls = append(resp.ToolCalls, session.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return withTextToolCalls(resp), nil
}

// Stream sends a streaming request and returns events
func (p *OpenAIProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))

	events := make(chan StreamEvent, 100)
	go p.handleStream(stream, events)
	return events, nil
}

func (p *OpenAIProvider) handleStream(stream *ssestream.Stream[openai.ChatCompletionChunk], events chan<- StreamEvent) {
	defer close(events)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			events <- StreamEvent{
				Type:     EventTypeToolCall,
				ToolCall: &session.ToolCall{ID: tool.ID, Name: tool.Name, Arguments: tool.Arguments},
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			events <- StreamEvent{Type: EventTypeText, Text: chunk.Choices[0].Delta.Content}
		}
	}

	if err := stream.Err(); err != nil {
		logging.Warnf("[OpenAI] %s stream error: %v", p.name, err)
		events <- StreamEvent{Type: EventTypeError, Error: NewProviderError(p.name, err)}
		return
	}
	events <- StreamEvent{Type: EventTypeDone}
}

// Embed calls the embeddings endpoint
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, NewProviderError(p.name, err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if int(d.Index) >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// buildOpenAIMessages converts session messages to the chat completions format
func buildOpenAIMessages(msgs []session.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))

		case session.RoleUser:
			result = append(result, openai.UserMessage(msg.Content))

		case session.RoleAssistant:
			assistantMsg := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})

		case session.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return result
}
