package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/logging"
)

// GeminiProvider uses the native Gemini API through google.golang.org/genai
type GeminiProvider struct {
	client         *genai.Client
	name           string
	model          string
	embeddingModel string
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(ctx context.Context, name, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if name == "" {
		name = "gemini"
	}
	return &GeminiProvider{
		client:         client,
		name:           name,
		model:          strings.TrimPrefix(model, "models/"),
		embeddingModel: "text-embedding-004",
	}, nil
}

// SetEmbeddingModel overrides the embeddings model
func (p *GeminiProvider) SetEmbeddingModel(model string) {
	if model != "" {
		p.embeddingModel = model
	}
}

// ID returns the provider identifier
func (p *GeminiProvider) ID() string {
	return p.name
}

// Flavor is gemini
func (p *GeminiProvider) Flavor() Flavor {
	return FlavorGemini
}

func (p *GeminiProvider) modelFor(req *ChatRequest) string {
	if req.Model != "" {
		return strings.TrimPrefix(req.Model, "models/")
	}
	return p.model
}

// Chat sends a non-streaming request
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := p.modelFor(req)
	system, contents := buildGeminiContents(req.Messages)
	cfg := buildGeminiConfig(req, system)

	logging.Debugf("[Gemini] %s: model=%s contents=%d tools=%d", p.name, model, len(contents), len(req.Tools))
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, NewProviderError(p.name, err)
	}

	out := &ChatResponse{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, geminiToolCall(part.FunctionCall, len(out.ToolCalls)))
		}
	}
	out.Content = text.String()
	return out, nil
}

// Stream sends a streaming request
func (p *GeminiProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	model := p.modelFor(req)
	system, contents := buildGeminiContents(req.Messages)
	cfg := buildGeminiConfig(req, system)

	events := make(chan StreamEvent, 100)
	go func() {
		defer close(events)

		counter := 0
		for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				logging.Warnf("[Gemini] %s stream error: %v", p.name, err)
				events <- StreamEvent{Type: EventTypeError, Error: NewProviderError(p.name, err)}
				return
			}
			if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
				continue
			}
			for _, part := range result.Candidates[0].Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					events <- StreamEvent{Type: EventTypeText, Text: part.Text}
				}
				if part.FunctionCall != nil {
					call := geminiToolCall(part.FunctionCall, counter)
					counter++
					events <- StreamEvent{Type: EventTypeToolCall, ToolCall: &call}
				}
			}
		}
		events <- StreamEvent{Type: EventTypeDone}
	}()
	return events, nil
}

// Embed calls EmbedContent with one content per text
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := p.client.Models.EmbedContent(ctx, p.embeddingModel, contents, nil)
	if err != nil {
		return nil, NewProviderError(p.name, err)
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, e.Values)
	}
	return out, nil
}

func geminiToolCall(fc *genai.FunctionCall, idx int) session.ToolCall {
	id := fc.ID
	if id == "" {
		id = fmt.Sprintf("gemini-call-%d", idx)
	}
	args, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		args = []byte("{}")
	}
	return session.ToolCall{ID: id, Name: fc.Name, Arguments: string(args)}
}

func buildGeminiConfig(req *ChatRequest, system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 tool.Name,
				Description:          tool.Description,
				ParametersJsonSchema: schemaMap(tool.InputSchema),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}
	return cfg
}

// buildGeminiContents splits out the system instruction and converts the rest.
// Tool results become function responses on a user turn.
func buildGeminiContents(msgs []session.Message) (string, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleSystem:
			system = append(system, msg.Content)

		case session.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case session.RoleAssistant:
			parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				part := genai.NewPartFromFunctionCall(tc.Name, argsMap(tc.Arguments))
				part.FunctionCall.ID = tc.ID
				parts = append(parts, part)
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText(""))
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))

		case session.RoleTool:
			part := genai.NewPartFromFunctionResponse(toolNameFor(msg.ToolCallID, msgs), map[string]any{"output": msg.Content})
			part.FunctionResponse.ID = msg.ToolCallID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
