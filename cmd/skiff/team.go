package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/skiff/internal/agent/runner"
	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/agent/team"
	"github.com/neboloop/skiff/internal/db"
)

// TeammateCmd creates the teammate command
func TeammateCmd() *cobra.Command {
	var teamName, name string

	cmd := &cobra.Command{
		Use:   "teammate [prompt]",
		Short: "Run a teammate that works through its mailbox",
		Long: `Runs a teammate agent. The optional prompt is processed first and its
result sent to the team lead; the teammate then polls its mailbox, answering
each message until the lead asks it to shut down.

Examples:
  skiff teammate --team docs --name writer "draft the changelog"`,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := loadConfig()
			if teamName == "" {
				teamName = cfg.Team.Name
			}
			if name == "" {
				name = cfg.Team.Member
			}
			if teamName == "" || name == "" {
				fatalf("--team and --name are required (or team.name / team.member in config)")
			}

			d := openDeps(ctx, cfg)
			defer d.Close()

			mailbox, err := team.NewMailbox(d.db, teamName)
			if err != nil {
				fatalf("Error opening mailbox: %v", err)
			}

			prompt := runner.NewPromptBuilder(cfg.Workspace, cfg.PromptTTL())
			prompt.SetTeam(runner.TeamContext{Team: teamName, Member: name, Lead: cfg.Team.Lead})

			key := sessionKey
			if key == "" {
				key = session.TeammateKey(teamName, name)
			}
			agent := d.newAgent(ctx, key, runner.Options{Prompt: prompt})

			mate := &team.Teammate{
				Name:               name,
				Lead:               cfg.Team.Lead,
				Mailbox:            mailbox,
				Agent:              agent,
				Hooks:              d.hooks,
				PollInterval:       time.Duration(cfg.Team.PollSeconds) * time.Second,
				IdleAnnounceCycles: cfg.Team.IdleAnnounceCycles,
			}

			fmt.Printf("Teammate %s joined team %s (lead: %s)\n", name, teamName, cfg.Team.Lead)
			err = mate.Run(ctx, strings.Join(args, " "))
			switch {
			case err == nil:
				fmt.Printf("Teammate %s shut down.\n", name)
			case errors.Is(err, context.Canceled):
				fmt.Println("\nInterrupted")
			default:
				fatalf("Error: %v", err)
			}
		},
	}

	cmd.Flags().StringVar(&teamName, "team", "", "team name (default: team.name)")
	cmd.Flags().StringVar(&name, "name", "", "teammate name (default: team.member)")
	return cmd
}

// TeamCmd creates the team command for talking to teammates from the shell
func TeamCmd() *cobra.Command {
	var teamName, from string

	cmd := &cobra.Command{
		Use:   "team",
		Short: "Send to and read from a team mailbox",
	}
	cmd.PersistentFlags().StringVar(&teamName, "team", "", "team name (default: team.name)")
	cmd.PersistentFlags().StringVar(&from, "as", "", "sender/reader name (default: team.lead)")

	open := func() (*team.Mailbox, string, func()) {
		cfg := loadConfig()
		if teamName == "" {
			teamName = cfg.Team.Name
		}
		if from == "" {
			from = cfg.Team.Lead
		}
		sqlDB, err := db.Open(cfg.DBPath())
		if err != nil {
			fatalf("Error opening database: %v", err)
		}
		mb, err := team.NewMailbox(sqlDB, teamName)
		if err != nil {
			sqlDB.Close()
			fatalf("Error: %v", err)
		}
		return mb, from, func() { sqlDB.Close() }
	}

	var shutdown bool
	send := &cobra.Command{
		Use:   "send <to> [text]",
		Short: "Send a message (or a shutdown request) to a teammate",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mb, sender, closeDB := open()
			defer closeDB()

			to := args[0]
			text := strings.Join(args[1:], " ")
			if shutdown {
				text = team.Notice{Type: team.TypeShutdownRequest, From: sender}.Encode()
			}
			if text == "" {
				fatalf("message text is required")
			}
			if err := mb.Send(cmd.Context(), sender, to, text, team.Summarize(text)); err != nil {
				fatalf("Error: %v", err)
			}
			fmt.Printf("Sent to %s.\n", to)
		},
	}
	send.Flags().BoolVar(&shutdown, "shutdown", false, "ask the teammate to shut down")

	read := &cobra.Command{
		Use:   "read",
		Short: "Print and mark read all unread messages",
		Run: func(cmd *cobra.Command, args []string) {
			mb, reader, closeDB := open()
			defer closeDB()

			msgs, err := mb.ReadUnread(cmd.Context(), reader)
			if err != nil {
				fatalf("Error: %v", err)
			}
			if len(msgs) == 0 {
				fmt.Println("No unread messages.")
				return
			}
			for _, m := range msgs {
				text, ok := runner.InboxText(m)
				if !ok {
					text = fmt.Sprintf("[Team] %s is idle", m.From)
				}
				fmt.Printf("%s  %s\n", m.CreatedAt.Format("15:04:05"), text)
			}
		},
	}

	cmd.AddCommand(send, read)
	return cmd
}
