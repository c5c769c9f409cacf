package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/neboloop/skiff/internal/agent/ai"
	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/agent/hooks"
	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/agent/tools"
	"github.com/neboloop/skiff/internal/logging"
)

// Options wires an Agent to its collaborators
type Options struct {
	Config *config.Config
	Chain  *ai.Chain
	Tools  *tools.Registry
	Store  *session.Store
	Hooks  *hooks.Runner
	Prompt *PromptBuilder

	// Inbox is polled before every provider call when set
	Inbox     Inbox
	InboxName string
}

// Agent runs the tool-using conversation loop for one session
type Agent struct {
	cfg       *config.Config
	chain     *ai.Chain
	tools     *tools.Registry
	store     *session.Store
	hooks     *hooks.Runner
	prompt    *PromptBuilder
	compactor *Compactor
	inbox     Inbox
	inboxName string

	// sleep waits out a retry backoff; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	model string
}

// New creates an Agent. Config, Chain, and Store are required.
func New(opts Options) (*Agent, error) {
	if opts.Config == nil || opts.Chain == nil || opts.Store == nil {
		return nil, errors.New("runner: config, chain and store are required")
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry()
	}
	if opts.Prompt == nil {
		opts.Prompt = NewPromptBuilder(opts.Config.Workspace, opts.Config.PromptTTL())
	}

	a := &Agent{
		cfg:       opts.Config,
		chain:     opts.Chain,
		tools:     opts.Tools,
		store:     opts.Store,
		hooks:     opts.Hooks,
		prompt:    opts.Prompt,
		inbox:     opts.Inbox,
		inboxName: opts.InboxName,
		sleep:     sleepContext,
	}
	a.compactor = &Compactor{Chain: opts.Chain, Hooks: opts.Hooks}
	return a, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetModel overrides the model sent with every request. Empty restores provider defaults.
func (a *Agent) SetModel(model string) {
	a.mu.Lock()
	a.model = model
	a.mu.Unlock()
	a.compactor.Model = model
}

// Model returns the override, or the configured default model
func (a *Agent) Model() string {
	if m := a.modelOverride(); m != "" {
		return m
	}
	return a.cfg.Model
}

func (a *Agent) modelOverride() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

// Tools returns the registry the agent executes against
func (a *Agent) Tools() *tools.Registry {
	return a.tools
}

// Reset clears the session log and forces the system prompt to be rebuilt
func (a *Agent) Reset(ctx context.Context) error {
	a.prompt.Invalidate()
	return a.store.Reset(ctx)
}

// Run answers one user message, executing requested tools until the model
// replies without tool calls. Failures are returned as "[error] ..." text.
func (a *Agent) Run(ctx context.Context, userMessage string) string {
	budget := a.cfg.Budget

	messages, err := a.seed(ctx)
	if err != nil {
		return "[error] " + err.Error()
	}

	data := a.hooks.Run(ctx, hooks.PreUserMessage, hooks.Data{"content": userMessage})
	if content, ok := data["content"].(string); ok {
		userMessage = content
	}

	userMsg := session.Message{Role: session.RoleUser, Content: userMessage}
	messages = append(messages, userMsg)
	a.log(ctx, userMsg)

	messages = a.prune(ctx, messages)
	messages = RepairToolPairing(messages)
	var compacted bool
	if messages, compacted = a.compactor.Compact(ctx, messages, budget); compacted {
		messages = a.prune(ctx, messages)
		messages = RepairToolPairing(messages)
	}

	toolDefs := a.tools.List()
	toolSpecTokens := 0
	if len(toolDefs) > 0 {
		spec, _ := json.Marshal(toolDefs)
		toolSpecTokens = EstimateTokens(string(spec))
	}

	maxIterations := a.cfg.MaxIterations
	maxOutput := a.cfg.EffectiveMaxToolOutput()
	limit := budget.ContextTokens - a.cfg.MaxTokens

	for iteration := 1; iteration <= maxIterations; iteration++ {
		messages = a.injectInbox(ctx, messages)
		logging.Debugf("[Runner] === Iteration %d (%d messages) ===", iteration, len(messages))

		if EstimateMessages(messages)+toolSpecTokens > limit {
			if messages, compacted = a.compactor.Compact(ctx, messages, budget); compacted {
				messages = a.prune(ctx, messages)
				messages = RepairToolPairing(messages)
			}
			if EstimateMessages(messages)+toolSpecTokens > limit {
				messages = a.prune(ctx, messages)
			}
		}

		a.hooks.Run(ctx, hooks.PreAPICall, hooks.Data{
			"message_count": len(messages),
			"model":         a.Model(),
			"provider":      a.chain.ActiveProviderName(),
		})

		var resp *ai.ChatResponse
		resp, messages, err = a.chat(ctx, messages, toolDefs)
		if err != nil {
			return "[error] Provider call failed: " + err.Error()
		}

		a.hooks.Run(ctx, hooks.PostAPICall, hooks.Data{
			"content_length":  len(resp.Content),
			"tool_call_count": len(resp.ToolCalls),
			"provider":        a.chain.ActiveProviderName(),
		})

		if !resp.HasToolCalls() {
			reply := session.Message{Role: session.RoleAssistant, Content: resp.Content}
			messages = append(messages, reply)
			a.log(ctx, reply)
			a.hooks.Fire(ctx, hooks.PostAssistantMessage, hooks.Data{"content": resp.Content})
			return resp.Content
		}

		assistant := session.Message{Role: session.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistant)
		a.log(ctx, assistant)

		for _, tc := range resp.ToolCalls {
			result := a.executeTool(ctx, tc)
			if len(result) > maxOutput {
				result = TruncateAtBoundary(result, maxOutput, budget.HeadChars, budget.TailChars)
			}
			toolMsg := session.Message{Role: session.RoleTool, ToolCallID: tc.ID, Content: result}
			messages = append(messages, toolMsg)
			a.log(ctx, toolMsg)
		}

		if budget.PruneEvery > 0 && iteration%budget.PruneEvery == 0 {
			messages = a.prune(ctx, messages)
		}
	}

	return fmt.Sprintf("[agent] Max tool iterations reached (%d)", maxIterations)
}

// seed returns the system prompt followed by recent history
func (a *Agent) seed(ctx context.Context) ([]session.Message, error) {
	recent, err := a.store.LoadRecent(ctx, a.cfg.HistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	messages := make([]session.Message, 0, len(recent)+2)
	messages = append(messages, session.Message{Role: session.RoleSystem, Content: a.prompt.Build()})
	return append(messages, recent...), nil
}

// chat calls the provider chain with retries. A context overflow gets one
// compaction and an immediate retry outside the retry budget.
func (a *Agent) chat(ctx context.Context, messages []session.Message, toolDefs []ai.ToolDefinition) (*ai.ChatResponse, []session.Message, error) {
	budget := a.cfg.Budget
	backoff := a.backoff()
	overflowHandled := false

	var lastErr error
	for attempt := 0; attempt <= budget.MaxRetries; {
		resp, err := a.chain.Chat(ctx, &ai.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			Model:       a.modelOverride(),
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		})
		if err == nil {
			return resp, messages, nil
		}
		lastErr = err

		kind := ai.ClassifyErrorReason(err)
		a.hooks.Fire(ctx, hooks.PostProviderError, hooks.Data{
			"error":    err.Error(),
			"provider": a.chain.ActiveProviderName(),
			"retry":    attempt,
		})

		if kind == ai.ErrorContextOverflow {
			// overflow compacts regardless of the estimate trigger
			if overflowHandled || !budget.AutoCompact {
				break
			}
			overflowHandled = true
			var compacted bool
			if messages, compacted = a.compactor.Force(ctx, messages, budget); !compacted {
				break
			}
			logging.Infof("[Runner] Context overflow, compacted and retrying")
			messages = a.prune(ctx, messages)
			messages = RepairToolPairing(messages)
			continue
		}

		if !kind.Retryable() || attempt >= budget.MaxRetries {
			break
		}
		delay, stop := backoff.Next()
		if stop {
			break
		}
		logging.Warnf("[Runner] Provider error (%s), retrying in %s: %v", kind, delay, err)
		if err := a.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
		attempt++
	}
	return nil, messages, lastErr
}

// backoff doubles from RetryBaseMillis: 1s, 2s, 4s with the default base
func (a *Agent) backoff() retry.Backoff {
	base := time.Duration(a.cfg.Budget.RetryBaseMillis) * time.Millisecond
	if base <= 0 {
		base = time.Millisecond
	}
	maxRetries := a.cfg.Budget.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(base))
}

func (a *Agent) executeTool(ctx context.Context, tc session.ToolCall) string {
	name, args := tc.Name, tc.Arguments
	data := a.hooks.Run(ctx, hooks.PreToolCall, hooks.Data{"name": name, "arguments": args})
	if s, ok := data["name"].(string); ok {
		name = s
	}
	if s, ok := data["arguments"].(string); ok {
		args = s
	}

	logging.Debugf("[Runner] Executing tool %s", name)
	result, err := a.tools.Execute(ctx, name, args)
	if err != nil {
		result = "[error] " + err.Error()
	}

	data = a.hooks.Run(ctx, hooks.PostToolCall, hooks.Data{"name": name, "result": result})
	if s, ok := data["result"].(string); ok {
		result = s
	}
	return result
}

func (a *Agent) prune(ctx context.Context, messages []session.Message) []session.Message {
	before := EstimateMessages(messages)
	a.hooks.Fire(ctx, hooks.PrePrune, hooks.Data{"message_count": len(messages), "total_tokens": before})
	messages = Prune(messages, a.cfg.Budget)
	if after := EstimateMessages(messages); after != before {
		a.hooks.Fire(ctx, hooks.PostPrune, hooks.Data{"total_tokens": after, "reclaimed_tokens": before - after})
	}
	return messages
}

func (a *Agent) log(ctx context.Context, msg session.Message) {
	if err := a.store.Log(ctx, msg); err != nil {
		logging.Errorf("[Runner] Failed to log %s message: %v", msg.Role, err)
	}
}

// ForceCompact compacts the stored session and rewrites it with the result.
// It reports token estimates before and after, and whether anything changed.
func (a *Agent) ForceCompact(ctx context.Context) (before, after int, compacted bool, err error) {
	messages, err := a.seed(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	before = EstimateMessages(messages[1:])

	messages, compacted = a.compactor.Force(ctx, messages, a.cfg.Budget)
	if !compacted {
		return before, before, false, nil
	}
	messages = RepairToolPairing(messages)

	if err := a.store.Replace(ctx, messages[1:]); err != nil {
		return before, before, false, err
	}
	return before, EstimateMessages(messages[1:]), true, nil
}

// Status renders the /status report
func (a *Agent) Status(ctx context.Context) string {
	recent, _ := a.store.LoadRecent(ctx, a.cfg.HistoryMessages)
	sessionTokens := EstimateMessages(recent)
	systemTokens := EstimateTokens(a.prompt.Build())
	toolTokens := a.toolSpecTokens()
	total := sessionTokens + systemTokens + toolTokens

	var sb strings.Builder
	fmt.Fprintf(&sb, "Model    : %s\n", a.Model())
	fmt.Fprintf(&sb, "Provider : %s (%d configured", a.chain.ActiveProviderName(), a.chain.ProviderCount())
	if a.chain.FallbackEnabled() {
		sb.WriteString(", fallback ON")
	}
	sb.WriteString(")\n")
	if cds := a.chain.CooldownNames(); len(cds) > 0 {
		fmt.Fprintf(&sb, "Cooldown : %s\n", strings.Join(cds, ", "))
	}
	fmt.Fprintf(&sb, "Session  : %s\n", a.store.Key())
	fmt.Fprintf(&sb, "Tokens   : %d (output)\n", a.cfg.MaxTokens)
	fmt.Fprintf(&sb, "Temp     : %g\n", a.cfg.Temperature)
	fmt.Fprintf(&sb, "Max iter : %d\n", a.cfg.MaxIterations)
	fmt.Fprintf(&sb, "Context  : %d / %d tokens (~%d%%)\n", total, a.cfg.Budget.ContextTokens, total*100/max(a.cfg.Budget.ContextTokens, 1))
	fmt.Fprintf(&sb, "  System : ~%d tokens\n", systemTokens)
	fmt.Fprintf(&sb, "  Tools  : ~%d tokens (%d tools)\n", toolTokens, len(a.tools.Names()))
	fmt.Fprintf(&sb, "  History: ~%d tokens (%d messages)\n", sessionTokens, len(recent))
	fmt.Fprintf(&sb, "Retries  : %d\n", a.cfg.Budget.MaxRetries)
	if a.cfg.Budget.AutoCompact {
		sb.WriteString("Compact  : auto (LLM)\n")
	} else {
		sb.WriteString("Compact  : manual\n")
	}
	fmt.Fprintf(&sb, "Hooks    : %d registered\n", a.hooks.Count())
	if a.cfg.Embedding.Enabled {
		sb.WriteString("Embedding: enabled\n")
	} else {
		sb.WriteString("Embedding: disabled\n")
	}
	return sb.String()
}

// ContextReport renders the /context breakdown
func (a *Agent) ContextReport(ctx context.Context) string {
	prompt := a.prompt.Build()

	var sb strings.Builder
	fmt.Fprintf(&sb, "System prompt: %d chars (~%d tokens)\n", len(prompt), EstimateTokens(prompt))
	for _, f := range a.prompt.Files() {
		state := "OK"
		if f.Truncated {
			state = "TRUNCATED"
		}
		fmt.Fprintf(&sb, "  %s: %d chars (~%d tok) %s | injected %d chars\n", f.Name, f.RawChars, f.RawChars/CharsPerTokenEstimate, state, f.Injected)
	}
	recent, _ := a.store.LoadRecent(ctx, a.cfg.HistoryMessages)
	fmt.Fprintf(&sb, "  Session: %d messages (~%d tokens)\n", len(recent), EstimateMessages(recent))
	fmt.Fprintf(&sb, "  Tools: %d registered (~%d tokens)\n", len(a.tools.Names()), a.toolSpecTokens())
	fmt.Fprintf(&sb, "  Context window: %d tokens\n", a.cfg.Budget.ContextTokens)
	return sb.String()
}

func (a *Agent) toolSpecTokens() int {
	defs := a.tools.List()
	if len(defs) == 0 {
		return 0
	}
	spec, _ := json.Marshal(defs)
	return EstimateTokens(string(spec))
}
