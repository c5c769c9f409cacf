package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/db"
)

// SessionCmd creates the session command
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Run: func(cmd *cobra.Command, args []string) {
			listSessions(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset [session-key]",
		Short: "Clear a session's history",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			key := resolveSessionKey()
			if len(args) > 0 {
				key = args[0]
			}
			resetSession(cmd.Context(), key)
		},
	})

	return cmd
}

// listSessions lists all sessions
func listSessions(ctx context.Context) {
	cfg := loadConfig()
	sqlDB, err := db.Open(cfg.DBPath())
	if err != nil {
		fatalf("Error opening database: %v", err)
	}
	defer sqlDB.Close()

	list, err := session.List(ctx, sqlDB)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	fmt.Println("Sessions:")
	for _, s := range list {
		fmt.Printf("  %-32s %4d messages (updated: %s)\n", s.Key, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

// resetSession clears a session's history
func resetSession(ctx context.Context, key string) {
	cfg := loadConfig()
	sqlDB, err := db.Open(cfg.DBPath())
	if err != nil {
		fatalf("Error opening database: %v", err)
	}
	defer sqlDB.Close()

	store, err := session.Open(ctx, sqlDB, key)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Printf("Cleared session: %s\n", key)
}
