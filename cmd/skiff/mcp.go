package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/skiff/internal/agent/mcp"
	"github.com/neboloop/skiff/internal/agent/tools"
	"github.com/neboloop/skiff/internal/logging"
)

// MCPCmd creates the mcp command
func MCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol server",
	}

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Expose the built-in tools over streamable HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := loadConfig()
			registry := tools.NewRegistry()
			tools.RegisterBuiltins(registry, cfg.Workspace)

			srv := &http.Server{
				Addr:              addr,
				Handler:           mcp.NewServer(registry, Version).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}()

			fmt.Printf("MCP server listening on http://%s (%d tools)\n", addr, len(registry.Names()))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatalf("Error: %v", err)
			}
			logging.Infof("[mcp] Server stopped")
		},
	}
	serve.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")

	cmd.AddCommand(serve)
	return cmd
}
