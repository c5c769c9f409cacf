package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/neboloop/skiff/internal/agent/config"
)

// NewProvider builds an adapter from a provider entry. The adapter is chosen by
// Type, falling back to the base URL for entries that omit it.
func NewProvider(ctx context.Context, name string, pc config.ProviderConfig, defaultModel string) (Provider, error) {
	model := pc.Model
	if model == "" {
		model = defaultModel
	}

	typ := strings.ToLower(pc.Type)
	if typ == "" {
		switch {
		case strings.Contains(pc.BaseURL, "anthropic"):
			typ = "anthropic"
		case strings.Contains(pc.BaseURL, ":11434"):
			typ = "ollama"
		default:
			typ = "openai"
		}
	}

	switch typ {
	case "openai", "openai_compat", "vllm", "llamacpp":
		return NewOpenAIProvider(name, pc.APIKey, pc.BaseURL, model), nil
	case "anthropic":
		return NewAnthropicProvider(name, pc.APIKey, pc.BaseURL, model), nil
	case "ollama":
		return NewOllamaProvider(name, pc.BaseURL, model), nil
	case "gemini", "google":
		return NewGeminiProvider(ctx, name, pc.APIKey, model)
	default:
		return nil, fmt.Errorf("provider %s: unknown type %q", name, pc.Type)
	}
}

// BuildChain assembles the provider chain from config: the fallback order when
// fallback is enabled, otherwise the single resolved provider. The embedding
// provider is attached when embeddings are enabled.
func BuildChain(ctx context.Context, cfg *config.Config) (*Chain, error) {
	var named []Named

	if cfg.Fallback.Enabled && len(cfg.Fallback.ProviderOrder) > 0 {
		for _, name := range cfg.Fallback.ProviderOrder {
			pc, ok := cfg.Providers[name]
			if !ok {
				return nil, fmt.Errorf("fallback provider %q is not configured", name)
			}
			p, err := NewProvider(ctx, name, pc, cfg.Model)
			if err != nil {
				return nil, err
			}
			named = append(named, Named{Name: name, Provider: p})
		}
	} else {
		name, pc := cfg.ResolveProvider()
		p, err := NewProvider(ctx, name, pc, cfg.Model)
		if err != nil {
			return nil, err
		}
		named = append(named, Named{Name: name, Provider: p})
	}

	chain := NewChain(named, cfg.Fallback)

	if cfg.Embedding.Enabled && cfg.Embedding.Provider != "" {
		pc, ok := cfg.Providers[cfg.Embedding.Provider]
		if !ok {
			return nil, fmt.Errorf("embedding provider %q is not configured", cfg.Embedding.Provider)
		}
		p, err := NewProvider(ctx, cfg.Embedding.Provider, pc, cfg.Model)
		if err != nil {
			return nil, err
		}
		chain.SetEmbeddingProvider(p)
	}
	if cfg.Embedding.Model != "" {
		chain.SetEmbeddingModel(cfg.Embedding.Model)
	}

	return chain, nil
}
