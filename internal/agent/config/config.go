package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is used when no provider is configured at all: a local
// OpenAI-compatible server (vLLM, llama.cpp, LM Studio).
const DefaultBaseURL = "http://127.0.0.1:8000/v1"

// Config holds the agent configuration
type Config struct {
	Model       string  `yaml:"model"`
	Provider    string  `yaml:"provider"` // provider key to use (empty = auto-detect)
	Workspace   string  `yaml:"workspace"`
	DataDir     string  `yaml:"data_dir"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	MaxIterations   int `yaml:"max_iterations"`
	HistoryMessages int `yaml:"history_messages"` // recent session messages loaded per run
	MaxToolOutput   int `yaml:"max_tool_output"`  // 0 = 30% of the context window in chars

	PromptTTLSeconds int    `yaml:"prompt_ttl_seconds"`
	LogLevel         string `yaml:"log_level"`

	Providers  map[string]ProviderConfig  `yaml:"providers"`
	Fallback   FallbackConfig             `yaml:"fallback"`
	Embedding  EmbeddingConfig            `yaml:"embedding"`
	Budget     BudgetConfig               `yaml:"budget"`
	Hooks      []HookConfig               `yaml:"hooks"`
	MCPServers map[string]MCPServerConfig `yaml:"mcp_servers"`
	Heartbeat  HeartbeatConfig            `yaml:"heartbeat"`
	Team       TeamConfig                 `yaml:"team"`
}

// ProviderConfig holds configuration for a single provider
type ProviderConfig struct {
	Type    string `yaml:"type,omitempty"` // "openai" (default), "anthropic", "ollama", "gemini"
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"` // overrides Config.Model for this provider
}

// FallbackConfig controls the provider chain. Cooldowns are in seconds.
type FallbackConfig struct {
	Enabled           bool     `yaml:"enabled"`
	ProviderOrder     []string `yaml:"provider_order"`
	RateLimitCooldown int      `yaml:"rate_limit_cooldown"`
	BillingCooldown   int      `yaml:"billing_cooldown"`
	AuthCooldown      int      `yaml:"auth_cooldown"`
	TimeoutCooldown   int      `yaml:"timeout_cooldown"`
	DefaultCooldown   int      `yaml:"default_cooldown"`
}

// EmbeddingConfig selects the provider used for embeddings.
// Empty Provider means the first chat provider.
type EmbeddingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// BudgetConfig holds the context budget. Token values use the 4 chars/token estimate;
// HeadChars/TailChars are characters.
type BudgetConfig struct {
	ContextTokens        int     `yaml:"context_tokens"`
	SoftRatio            float64 `yaml:"soft_ratio"`
	HardRatio            float64 `yaml:"hard_ratio"`
	HeadChars            int     `yaml:"head_chars"`
	TailChars            int     `yaml:"tail_chars"`
	KeepRecent           int     `yaml:"keep_recent"` // protected assistant turns
	AutoCompact          bool    `yaml:"auto_compact"`
	CompactReserveTokens int     `yaml:"compact_reserve_tokens"`
	MaxRetries           int     `yaml:"max_retries"`
	PruneEvery           int     `yaml:"prune_every"` // re-prune every N tool iterations
	RetryBaseMillis      int     `yaml:"retry_base_ms"`
}

// HookConfig declares a shell hook
type HookConfig struct {
	Type           string `yaml:"type"`
	Command        string `yaml:"command"`
	Priority       int    `yaml:"priority"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MCPServerConfig describes an external tool server reachable over streamable HTTP
type MCPServerConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// HeartbeatConfig schedules HEARTBEAT.md runs. Schedule is a robfig/cron spec.
type HeartbeatConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// TeamConfig configures the teammate mailbox loop
type TeamConfig struct {
	Name               string `yaml:"name"`
	Member             string `yaml:"member"`
	Lead               string `yaml:"lead"`
	PollSeconds        int    `yaml:"poll_seconds"`
	IdleAnnounceCycles int    `yaml:"idle_announce_cycles"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model:            "gpt-4.1-mini",
		Workspace:        "~/.skiff/workspace",
		DataDir:          "~/.skiff",
		MaxTokens:        2048,
		Temperature:      0.7,
		MaxIterations:    20,
		HistoryMessages:  50,
		PromptTTLSeconds: 60,
		LogLevel:         "info",
		Providers:        map[string]ProviderConfig{},
		Fallback: FallbackConfig{
			RateLimitCooldown: 60,
			BillingCooldown:   3600,
			AuthCooldown:      3600,
			TimeoutCooldown:   30,
			DefaultCooldown:   30,
		},
		Budget: BudgetConfig{
			ContextTokens:        128000,
			SoftRatio:            0.3,
			HardRatio:            0.5,
			HeadChars:            1500,
			TailChars:            1500,
			KeepRecent:           3,
			AutoCompact:          true,
			CompactReserveTokens: 16384,
			MaxRetries:           3,
			PruneEvery:           3,
			RetryBaseMillis:      1000,
		},
		MCPServers: map[string]MCPServerConfig{},
		Heartbeat:  HeartbeatConfig{Schedule: "@every 30m"},
		Team:       TeamConfig{Lead: "team-lead", PollSeconds: 2, IdleAnnounceCycles: 15},
	}
}

// DefaultPath returns ~/.skiff/config.yaml
func DefaultPath() string {
	return filepath.Join(expandHome("~/.skiff"), "config.yaml")
}

// Load reads config from path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.normalize()
	return cfg, nil
}

// normalize expands paths and env references, and fills keys from the environment
func (c *Config) normalize() {
	c.Workspace = expandHome(os.ExpandEnv(c.Workspace))
	c.DataDir = expandHome(os.ExpandEnv(c.DataDir))
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, p := range c.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		if p.APIKey == "" {
			p.APIKey = envKeyFor(p.Type, p.BaseURL)
		}
		c.Providers[name] = p
	}
	for i := range c.Hooks {
		c.Hooks[i].Command = os.ExpandEnv(c.Hooks[i].Command)
	}
	if c.Team.PollSeconds <= 0 {
		c.Team.PollSeconds = 2
	}
	if c.Team.IdleAnnounceCycles <= 0 {
		c.Team.IdleAnnounceCycles = 15
	}
	if c.Budget.PruneEvery <= 0 {
		c.Budget.PruneEvery = 3
	}
}

func envKeyFor(typ, baseURL string) string {
	switch {
	case typ == "anthropic" || strings.Contains(baseURL, "anthropic"):
		return os.Getenv("ANTHROPIC_API_KEY")
	case typ == "gemini" || strings.Contains(baseURL, "generativelanguage.googleapis"):
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GOOGLE_API_KEY")
	case typ == "ollama":
		return ""
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	return p
}

// Save writes the config as YAML, creating parent directories
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DBPath returns the path to the SQLite database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data", "skiff.db")
}

// PromptTTL returns how long a built system prompt stays fresh
func (c *Config) PromptTTL() time.Duration {
	if c.PromptTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.PromptTTLSeconds) * time.Second
}

// ProviderNames returns configured provider keys in sorted order
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveProvider picks the provider used when no fallback order is configured:
// the explicit key, then "default", then "openai_compat", then the first configured
// one, and finally a local OpenAI-compatible endpoint.
func (c *Config) ResolveProvider() (string, ProviderConfig) {
	if c.Provider != "" {
		if p, ok := c.Providers[c.Provider]; ok {
			return c.Provider, p
		}
	}
	for _, name := range []string{"default", "openai_compat"} {
		if p, ok := c.Providers[name]; ok {
			return name, p
		}
	}
	if names := c.ProviderNames(); len(names) > 0 {
		return names[0], c.Providers[names[0]]
	}
	return "default", ProviderConfig{Type: "openai", BaseURL: DefaultBaseURL, APIKey: os.Getenv("OPENAI_API_KEY")}
}

// EffectiveMaxToolOutput returns the configured cap, or 30% of the context window in chars
func (c *Config) EffectiveMaxToolOutput() int {
	if c.MaxToolOutput > 0 {
		return c.MaxToolOutput
	}
	return int(float64(c.Budget.ContextTokens*4) * 0.3)
}

// Cooldown returns the cooldown duration for an error kind name. Fields left out
// of the YAML keep their DefaultConfig values; an explicit 0 disables the cooldown.
func (f FallbackConfig) Cooldown(kind string) time.Duration {
	secs := f.DefaultCooldown
	switch kind {
	case "rate_limit":
		secs = f.RateLimitCooldown
	case "billing":
		secs = f.BillingCooldown
	case "auth":
		secs = f.AuthCooldown
	case "timeout":
		secs = f.TimeoutCooldown
	}
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second
}
