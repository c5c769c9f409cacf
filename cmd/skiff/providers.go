package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/skiff/internal/agent/ai"
	"github.com/neboloop/skiff/internal/agent/config"
)

// ProvidersCmd creates the providers command
func ProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show configured providers and the resolved chain",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			showProviders(cmd.Context(), cfg)
		},
	}
}

func showProviders(ctx context.Context, cfg *config.Config) {
	names := cfg.ProviderNames()
	if len(names) == 0 {
		fmt.Printf("No providers configured; using %s\n", config.DefaultBaseURL)
	}

	for _, name := range names {
		pc := cfg.Providers[name]
		model := pc.Model
		if model == "" {
			model = cfg.Model
		}
		key := "no key"
		if pc.APIKey != "" {
			key = "key set"
		}
		typ := pc.Type
		if typ == "" {
			typ = "openai"
		}
		fmt.Printf("  %-16s %-10s %-28s %s (%s)\n", name, typ, model, pc.BaseURL, key)

		if typ == "ollama" {
			listCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			models, err := ai.ListOllamaModels(listCtx, pc.BaseURL)
			cancel()
			if err != nil {
				fmt.Printf("  %-16s unreachable: %v\n", "", err)
				continue
			}
			fmt.Printf("  %-16s local models: %s\n", "", strings.Join(models, ", "))
		}
	}

	fmt.Println()
	if cfg.Fallback.Enabled && len(cfg.Fallback.ProviderOrder) > 0 {
		fmt.Printf("Chain (fallback): %s\n", strings.Join(cfg.Fallback.ProviderOrder, " -> "))
	} else {
		name, _ := cfg.ResolveProvider()
		fmt.Printf("Chain: %s\n", name)
	}
	if cfg.Embedding.Enabled {
		p := cfg.Embedding.Provider
		if p == "" {
			p = "first chat provider"
		}
		fmt.Printf("Embeddings: %s\n", p)
	}
}
