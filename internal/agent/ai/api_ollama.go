package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/logging"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements the Provider interface for Ollama (local models) using the official SDK
type OllamaProvider struct {
	client         *api.Client
	name           string
	model          string
	embeddingModel string
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(name, baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = "qwen3:4b"
	}
	if name == "" {
		name = "ollama"
	}

	parsedURL, err := url.Parse(strings.TrimSuffix(baseURL, "/v1"))
	if err != nil {
		parsedURL, _ = url.Parse(defaultOllamaURL)
	}

	httpClient := &http.Client{
		Timeout: 5 * time.Minute, // local inference is slow
	}

	return &OllamaProvider{
		client:         api.NewClient(parsedURL, httpClient),
		name:           name,
		model:          model,
		embeddingModel: "nomic-embed-text",
	}
}

// SetEmbeddingModel overrides the embeddings model
func (p *OllamaProvider) SetEmbeddingModel(model string) {
	if model != "" {
		p.embeddingModel = model
	}
}

// ID returns the provider identifier
func (p *OllamaProvider) ID() string {
	return p.name
}

// Flavor is openai; Ollama accepts plain JSON Schema objects
func (p *OllamaProvider) Flavor() Flavor {
	return FlavorOpenAI
}

func (p *OllamaProvider) buildRequest(req *ChatRequest, stream bool) *api.ChatRequest {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: buildOllamaMessages(req.Messages),
		Stream:   &stream,
	}

	if req.Temperature > 0 || req.MaxTokens > 0 {
		chatReq.Options = make(map[string]any)
		if req.Temperature > 0 {
			chatReq.Options["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			chatReq.Options["num_predict"] = req.MaxTokens
		}
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = buildOllamaTools(req.Tools)
	}

	logging.Debugf("[Ollama] %s: model=%s messages=%d tools=%d", p.name, model, len(chatReq.Messages), len(req.Tools))
	return chatReq
}

// Chat sends a non-streaming request
func (p *OllamaProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var (
		text  strings.Builder
		calls []session.ToolCall
	)
	err := p.client.Chat(ctx, p.buildRequest(req, false), func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		for _, tc := range resp.Message.ToolCalls {
			calls = append(calls, ollamaToolCall(tc, len(calls)))
		}
		return nil
	})
	if err != nil {
		return nil, NewProviderError(p.name, err)
	}
	return withTextToolCalls(&ChatResponse{Content: text.String(), ToolCalls: calls}), nil
}

// Stream sends a request to Ollama and streams the response
func (p *OllamaProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	chatReq := p.buildRequest(req, true)
	resultCh := make(chan StreamEvent, 100)

	go func() {
		defer close(resultCh)

		counter := 0
		done := false
		err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				resultCh <- StreamEvent{Type: EventTypeText, Text: resp.Message.Content}
			}
			for _, tc := range resp.Message.ToolCalls {
				call := ollamaToolCall(tc, counter)
				counter++
				resultCh <- StreamEvent{Type: EventTypeToolCall, ToolCall: &call}
			}
			if resp.Done {
				done = true
			}
			return nil
		})

		if err != nil {
			logging.Warnf("[Ollama] %s stream error: %v", p.name, err)
			resultCh <- StreamEvent{Type: EventTypeError, Error: NewProviderError(p.name, err)}
			return
		}
		if done {
			resultCh <- StreamEvent{Type: EventTypeDone}
		}
	}()

	return resultCh, nil
}

// Embed uses the /api/embed endpoint
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, NewProviderError(p.name, err)
	}
	return resp.Embeddings, nil
}

func ollamaToolCall(tc api.ToolCall, idx int) session.ToolCall {
	id := tc.ID
	if id == "" {
		id = fmt.Sprintf("ollama-call-%d", idx)
	}
	args, err := json.Marshal(tc.Function.Arguments.ToMap())
	if err != nil {
		args = []byte("{}")
	}
	return session.ToolCall{
		ID:        id,
		Name:      tc.Function.Name,
		Arguments: string(args),
	}
}

// buildOllamaMessages converts session messages to Ollama format
func buildOllamaMessages(msgs []session.Message) []api.Message {
	messages := make([]api.Message, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleSystem, session.RoleUser:
			messages = append(messages, api.Message{Role: msg.Role, Content: msg.Content})

		case session.RoleAssistant:
			assistantMsg := api.Message{Role: session.RoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args := api.NewToolCallFunctionArguments()
				for k, v := range argsMap(tc.Arguments) {
					args.Set(k, v)
				}
				assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			if assistantMsg.Content != "" || len(assistantMsg.ToolCalls) > 0 {
				messages = append(messages, assistantMsg)
			}

		case session.RoleTool:
			messages = append(messages, api.Message{
				Role:       session.RoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				ToolName:   toolNameFor(msg.ToolCallID, msgs),
			})
		}
	}

	return messages
}

// buildOllamaTools converts tool definitions to Ollama format
func buildOllamaTools(tools []ToolDefinition) api.Tools {
	result := make(api.Tools, 0, len(tools))

	for _, tool := range tools {
		schema := schemaMap(tool.InputSchema)
		params := api.ToolFunctionParameters{Type: "object"}

		if props, ok := schema["properties"].(map[string]any); ok {
			propsMap := api.NewToolPropertiesMap()
			for name, propRaw := range props {
				if propObj, ok := propRaw.(map[string]any); ok {
					propsMap.Set(name, convertOllamaProperty(propObj))
				}
			}
			params.Properties = propsMap
		}

		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					params.Required = append(params.Required, s)
				}
			}
		}

		result = append(result, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	return result
}

func convertOllamaProperty(prop map[string]any) api.ToolProperty {
	result := api.ToolProperty{}
	if typeVal, ok := prop["type"].(string); ok {
		result.Type = api.PropertyType{typeVal}
	}
	if desc, ok := prop["description"].(string); ok {
		result.Description = desc
	}
	if enum, ok := prop["enum"].([]any); ok {
		result.Enum = enum
	}
	if items, ok := prop["items"]; ok {
		result.Items = items
	}
	return result
}

// ListOllamaModels returns the models installed on an Ollama server
func ListOllamaModels(ctx context.Context, baseURL string) ([]string, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	parsedURL, err := url.Parse(strings.TrimSuffix(baseURL, "/v1"))
	if err != nil {
		return nil, err
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: 5 * time.Second})
	resp, err := client.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, m.Name)
	}
	return models, nil
}
