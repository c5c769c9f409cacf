package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags
var Version = "dev"

// Shared CLI flags (used across multiple command files)
var (
	cfgFile     string
	sessionKey  string
	providerArg string
	modelArg    string
	verbose     bool
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skiff",
		Short: "Skiff - a small tool-using agent runtime",
		Long: `Skiff runs a tool-using conversation loop against OpenAI-compatible,
Anthropic, Ollama and Gemini providers, keeping the context inside budget.

Just type 'skiff' to start an interactive session.`,
		Version: Version,
		Run: func(cmd *cobra.Command, args []string) {
			runAgent(cmd.Context(), "")
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.skiff/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&sessionKey, "session", "s", "", "session key for conversation history (default: today's date)")
	rootCmd.PersistentFlags().StringVarP(&providerArg, "provider", "p", "", "provider to use (default: resolved from config)")
	rootCmd.PersistentFlags().StringVarP(&modelArg, "model", "m", "", "model override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add commands
	rootCmd.AddCommand(AgentCmd())
	rootCmd.AddCommand(AskCmd())
	rootCmd.AddCommand(EmbedCmd())
	rootCmd.AddCommand(HeartbeatCmd())
	rootCmd.AddCommand(TeammateCmd())
	rootCmd.AddCommand(TeamCmd())
	rootCmd.AddCommand(SessionCmd())
	rootCmd.AddCommand(ProvidersCmd())
	rootCmd.AddCommand(MCPCmd())

	return rootCmd
}
