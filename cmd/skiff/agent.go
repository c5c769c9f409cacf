package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/neboloop/skiff/internal/agent/hooks"
	"github.com/neboloop/skiff/internal/agent/runner"
	"github.com/neboloop/skiff/internal/agent/team"
	"github.com/neboloop/skiff/internal/logging"
)

const replHelp = `Commands:
  /new [model]    - Start a fresh session, optionally switching model
  /reset          - Clear the current session
  /status         - Show provider, model and context usage
  /model [name]   - Show or switch the model
  /context        - Show the context budget breakdown
  /compact        - Summarize older history now
  /tools          - List available tools
  /help           - Show this help
  exit, quit, :q  - Exit`

// AgentCmd creates the agent command
func AgentCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the agent once or interactively",
		Long: `Run the tool-using agent against the current session.

With -M (or when stdin is not a terminal) a single message is processed
and the reply printed. Otherwise an interactive session starts.

Examples:
  skiff agent -M "summarize README.md"
  echo "what changed today?" | skiff agent
  skiff agent -s project-x`,
		Run: func(cmd *cobra.Command, args []string) {
			runAgent(cmd.Context(), message)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "M", "", "process a single message and exit")
	return cmd
}

func runAgent(ctx context.Context, message string) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signalContext(ctx)
	defer cancel()

	cfg := loadConfig()
	d := openDeps(ctx, cfg)
	defer d.Close()

	key := resolveSessionKey()
	prompt := runner.NewPromptBuilder(cfg.Workspace, cfg.PromptTTL())
	opts := runner.Options{Prompt: prompt}

	// The lead reads its teammates' messages between provider calls
	var mailbox *team.Mailbox
	if cfg.Team.Name != "" {
		mb, err := team.NewMailbox(d.db, cfg.Team.Name)
		if err != nil {
			fatalf("Error opening team mailbox: %v", err)
		}
		mailbox = mb
		opts.Inbox = mb
		opts.InboxName = cfg.Team.Lead
		prompt.SetTeam(runner.TeamContext{Team: cfg.Team.Name, Member: cfg.Team.Lead, Lead: cfg.Team.Lead})
	}

	agent := d.newAgent(ctx, key, opts)

	watcher, err := runner.WatchPrompt(ctx, prompt)
	if err != nil {
		logging.Warnf("[cli] Prompt files will not be watched: %v", err)
	} else {
		defer watcher.Close()
	}

	d.hooks.Fire(ctx, hooks.AgentStart, hooks.Data{"session": key, "model": agent.Model()})
	defer d.hooks.Fire(context.Background(), hooks.AgentStop, hooks.Data{"session": key})

	stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
	switch {
	case message != "":
		fmt.Println(agent.Run(ctx, message))
	case !stdinTTY:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fatalf("Error reading stdin: %v", err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			fmt.Println(agent.Run(ctx, text))
		}
	default:
		runREPL(ctx, agent, mailbox, cfg.Team.Lead, key)
	}
}

// runREPL runs an interactive session until EOF, exit, or interrupt
func runREPL(ctx context.Context, agent *runner.Agent, mailbox *team.Mailbox, lead, key string) {
	fmt.Println("\033[1mSkiff Interactive Mode\033[0m")
	fmt.Printf("Session %s, model %s. Type /help for commands, Ctrl+C to exit.\n\n", key, agent.Model())

	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(os.Stdin)
		for {
			line, err := reader.ReadString('\n')
			if line != "" || err == nil {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		showPending(ctx, mailbox, lead)
		fmt.Print("\033[36m> \033[0m")

		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Println()
				return
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		switch line {
		case "exit", "quit", ":q":
			return
		}
		if strings.HasPrefix(line, "/") {
			handleCommand(ctx, agent, line)
			continue
		}

		reply := agent.Run(ctx, line)
		fmt.Printf("\033[32m%s\033[0m\n\n", reply)
	}
}

// showPending prints a notice when teammates left unread messages for the lead
func showPending(ctx context.Context, mailbox *team.Mailbox, lead string) {
	if mailbox == nil {
		return
	}
	n, err := mailbox.Pending(ctx, lead)
	if err != nil || n == 0 {
		return
	}
	fmt.Printf("\033[33m[inbox] %d unread team message(s), delivered with your next message\033[0m\n", n)
}

// handleCommand handles interactive slash commands
func handleCommand(ctx context.Context, agent *runner.Agent, line string) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/help":
		fmt.Println(replHelp)

	case "/new":
		if err := agent.Reset(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
			return
		}
		if arg != "" {
			agent.SetModel(arg)
		}
		fmt.Printf("New session started (model %s).\n", agent.Model())

	case "/reset":
		if err := agent.Reset(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
			return
		}
		fmt.Println("Session reset.")

	case "/status":
		fmt.Println(agent.Status(ctx))

	case "/model":
		if arg == "" {
			fmt.Printf("Model: %s\n", agent.Model())
			return
		}
		agent.SetModel(arg)
		fmt.Printf("Model set to %s\n", arg)

	case "/context":
		fmt.Println(agent.ContextReport(ctx))

	case "/compact":
		before, after, compacted, err := agent.ForceCompact(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
		case !compacted:
			fmt.Println("Nothing to compact (context usage is low).")
		default:
			fmt.Printf("Compacted: ~%d tokens -> ~%d tokens\n", before, after)
		}

	case "/tools":
		defs := agent.Tools().List()
		fmt.Printf("Tools (%d):\n", len(defs))
		for _, def := range defs {
			fmt.Printf("  %-24s %s\n", def.Name, firstLine(def.Description))
		}

	default:
		fmt.Printf("Unknown command %s (try /help)\n", fields[0])
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
