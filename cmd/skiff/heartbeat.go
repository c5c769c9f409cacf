package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neboloop/skiff/internal/agent/heartbeat"
	"github.com/neboloop/skiff/internal/agent/runner"
	"github.com/neboloop/skiff/internal/agent/session"
)

// HeartbeatCmd creates the heartbeat command
func HeartbeatCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Run HEARTBEAT.md through the agent on a schedule",
		Long: `Reads HEARTBEAT.md from the workspace on every tick of heartbeat.schedule
and runs its content through the agent in the "heartbeat" session.`,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := loadConfig()
			d := openDeps(ctx, cfg)
			defer d.Close()

			key := sessionKey
			if key == "" {
				key = session.HeartbeatKey
			}
			agent := d.newAgent(ctx, key, runner.Options{})
			svc := heartbeat.New(cfg.Workspace, cfg.Heartbeat.Schedule, agent.Run)

			if once {
				reply, err := svc.Tick(ctx)
				if err != nil {
					fatalf("Error: %v", err)
				}
				if reply == "" {
					fmt.Printf("%s is empty, nothing to do.\n", heartbeat.FileName)
					return
				}
				fmt.Println(reply)
				return
			}

			if err := svc.Start(ctx); err != nil {
				fatalf("Error: %v", err)
			}
			fmt.Printf("Heartbeat running (%s). Ctrl+C to stop.\n", cfg.Heartbeat.Schedule)
			<-ctx.Done()
			svc.Stop()
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	return cmd
}
