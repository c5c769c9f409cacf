package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/skiff/internal/agent/ai"
	"github.com/neboloop/skiff/internal/agent/session"
)

// AskCmd creates the ask command
func AskCmd() *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Stream a single reply from the provider chain (no tools, no history)",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := loadConfig()
			chain, err := ai.BuildChain(ctx, cfg)
			if err != nil {
				fatalf("Error configuring providers: %v", err)
			}

			var msgs []session.Message
			if system != "" {
				msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: system})
			}
			msgs = append(msgs, session.Message{Role: session.RoleUser, Content: strings.Join(args, " ")})

			_, err = chain.ChatStream(ctx, &ai.ChatRequest{
				Messages:    msgs,
				Model:       modelArg,
				MaxTokens:   cfg.MaxTokens,
				Temperature: cfg.Temperature,
			}, func(token string) {
				fmt.Print(token)
			})
			fmt.Println()
			if err != nil {
				fatalf("Error: %v", err)
			}
			if verbose {
				fmt.Printf("\033[90m[provider: %s]\033[0m\n", chain.ActiveProviderName())
			}
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "optional system prompt")
	return cmd
}

// EmbedCmd creates the embed command
func EmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text>...",
		Short: "Embed each argument and print vector dimensions",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := loadConfig()
			chain, err := ai.BuildChain(ctx, cfg)
			if err != nil {
				fatalf("Error configuring providers: %v", err)
			}

			vecs, err := chain.Embed(ctx, args)
			if err != nil {
				fatalf("Error: %v", err)
			}
			for i, v := range vecs {
				preview := v
				if len(preview) > 4 {
					preview = preview[:4]
				}
				fmt.Printf("%q: %d dims %v...\n", args[i], len(v), preview)
			}
		},
	}
}
