package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/neboloop/skiff/internal/agent/ai"
	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/agent/hooks"
	"github.com/neboloop/skiff/internal/agent/mcp"
	"github.com/neboloop/skiff/internal/agent/runner"
	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/agent/tools"
	"github.com/neboloop/skiff/internal/db"
	"github.com/neboloop/skiff/internal/logging"
)

// loadConfig reads the config file and applies flag overrides
func loadConfig() *config.Config {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("Error loading config %s: %v", path, err)
	}

	if providerArg != "" {
		if _, ok := cfg.Providers[providerArg]; !ok {
			fatalf("Unknown provider %q (configured: %v)", providerArg, cfg.ProviderNames())
		}
		cfg.Provider = providerArg
		cfg.Fallback.Enabled = false
	}
	if modelArg != "" {
		cfg.Model = modelArg
	}

	logging.SetLevel(cfg.LogLevel)
	if verbose {
		logging.SetLevel("debug")
	}
	return cfg
}

// resolveSessionKey returns the --session flag or today's daily key
func resolveSessionKey() string {
	if sessionKey != "" {
		return sessionKey
	}
	return session.DailyKey(time.Now())
}

// deps holds the collaborators shared by the agent-running commands
type deps struct {
	cfg    *config.Config
	db     *sql.DB
	chain  *ai.Chain
	tools  *tools.Registry
	hooks  *hooks.Runner
	bridge *mcp.Bridge
}

// openDeps wires the database, provider chain, hooks, and tool registry
func openDeps(ctx context.Context, cfg *config.Config) *deps {
	sqlDB, err := db.Open(cfg.DBPath())
	if err != nil {
		fatalf("Error opening database: %v", err)
	}

	chain, err := ai.BuildChain(ctx, cfg)
	if err != nil {
		sqlDB.Close()
		fatalf("Error configuring providers: %v", err)
	}

	hookRunner := hooks.NewRunner()
	if err := hooks.LoadFromConfig(hookRunner, cfg.Hooks); err != nil {
		sqlDB.Close()
		fatalf("Error loading hooks: %v", err)
	}

	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		logging.Warnf("[cli] Could not create workspace %s: %v", cfg.Workspace, err)
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, cfg.Workspace)

	bridge := mcp.NewBridge(registry, Version)
	if err := bridge.ConnectAll(ctx, cfg.MCPServers); err != nil {
		// Unreachable servers only cost their tools
		logging.Warnf("[mcp] %v", err)
	}

	return &deps{cfg: cfg, db: sqlDB, chain: chain, tools: registry, hooks: hookRunner, bridge: bridge}
}

func (d *deps) Close() {
	d.bridge.Close()
	d.db.Close()
}

// newAgent opens the session and builds an agent bound to it
func (d *deps) newAgent(ctx context.Context, key string, opts runner.Options) *runner.Agent {
	store, err := session.Open(ctx, d.db, key)
	if err != nil {
		fatalf("Error opening session %s: %v", key, err)
	}

	opts.Config = d.cfg
	opts.Chain = d.chain
	opts.Tools = d.tools
	opts.Store = store
	opts.Hooks = d.hooks

	agent, err := runner.New(opts)
	if err != nil {
		fatalf("Error creating agent: %v", err)
	}
	return agent
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
