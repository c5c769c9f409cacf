package runner

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neboloop/skiff/internal/agent/ai"
	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/agent/hooks"
	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/agent/team"
	"github.com/neboloop/skiff/internal/agent/tools"
	"github.com/neboloop/skiff/internal/db"
)

type chatFunc func(req *ai.ChatRequest) (*ai.ChatResponse, error)

// fakeProvider answers from a queue, then from fallback, and records every request
type fakeProvider struct {
	mu       sync.Mutex
	queue    []chatFunc
	fallback chatFunc
	requests []ai.ChatRequest
}

func (p *fakeProvider) ID() string        { return "fake" }
func (p *fakeProvider) Flavor() ai.Flavor { return ai.FlavorOpenAI }

func (p *fakeProvider) Chat(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	p.mu.Lock()
	snapshot := *req
	snapshot.Messages = append([]session.Message(nil), req.Messages...)
	p.requests = append(p.requests, snapshot)
	var fn chatFunc
	if len(p.queue) > 0 {
		fn, p.queue = p.queue[0], p.queue[1:]
	} else {
		fn = p.fallback
	}
	p.mu.Unlock()

	if fn == nil {
		return nil, errors.New("fake provider: no scripted reply")
	}
	return fn(req)
}

func (p *fakeProvider) Stream(ctx context.Context, req *ai.ChatRequest) (<-chan ai.StreamEvent, error) {
	return nil, errors.New("not implemented")
}

func (p *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ai.ErrEmbeddingsUnsupported
}

func (p *fakeProvider) calls() []ai.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.ChatRequest(nil), p.requests...)
}

func reply(content string) chatFunc {
	return func(*ai.ChatRequest) (*ai.ChatResponse, error) {
		return &ai.ChatResponse{Content: content}, nil
	}
}

func toolCall(id, name, args string) chatFunc {
	return func(*ai.ChatRequest) (*ai.ChatResponse, error) {
		return &ai.ChatResponse{ToolCalls: []session.ToolCall{{ID: id, Name: name, Arguments: args}}}, nil
	}
}

func fail(text string) chatFunc {
	return func(*ai.ChatRequest) (*ai.ChatResponse, error) {
		return nil, errors.New(text)
	}
}

func newChain(p ai.Provider) *ai.Chain {
	return ai.NewChain([]ai.Named{{Name: "fake", Provider: p}}, config.FallbackConfig{})
}

// echoTool returns its "text" argument, or a fixed payload when set
type echoTool struct {
	payload string
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo text back" }
func (e *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
}

func (e *echoTool) Execute(ctx context.Context, input json.RawMessage) (*tools.ToolResult, error) {
	if e.payload != "" {
		return &tools.ToolResult{Content: e.payload}, nil
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return &tools.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &tools.ToolResult{Content: "echo: " + in.Text}, nil
}

type testEnv struct {
	agent    *Agent
	store    *session.Store
	provider *fakeProvider
	hooks    *hooks.Runner
	cfg      *config.Config
	delays   []time.Duration
}

func newTestEnv(t *testing.T, p *fakeProvider, opts ...func(*config.Config, *Options)) *testEnv {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := session.Open(context.Background(), conn, "test")
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.Budget.RetryBaseMillis = 1

	registry := tools.NewRegistry()
	registry.Register(&echoTool{})

	env := &testEnv{store: store, provider: p, hooks: hooks.NewRunner(), cfg: cfg}
	o := Options{Config: cfg, Chain: newChain(p), Tools: registry, Store: store, Hooks: env.hooks}
	for _, fn := range opts {
		fn(cfg, &o)
	}

	agent, err := New(o)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	agent.sleep = func(ctx context.Context, d time.Duration) error {
		env.delays = append(env.delays, d)
		return nil
	}
	env.agent = agent
	return env
}

func (e *testEnv) logged(t *testing.T) []session.Message {
	t.Helper()
	msgs, err := e.store.LoadRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("LoadRecent failed: %v", err)
	}
	return msgs
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}

func TestRunWithToolCall(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{
		toolCall("call_1", "echo", `{"text":"hi"}`),
		reply("all done"),
	}}
	env := newTestEnv(t, p)

	got := env.agent.Run(context.Background(), "say hi")
	if got != "all done" {
		t.Fatalf("Run = %q", got)
	}

	msgs := env.logged(t)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	want := []string{"user", "assistant", "tool", "assistant"}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Fatalf("logged roles = %v, want %v", roles, want)
	}
	if !msgs[1].HasToolCalls() || msgs[1].ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant tool calls not logged: %+v", msgs[1])
	}
	if msgs[2].ToolCallID != "call_1" || msgs[2].Content != "echo: hi" {
		t.Errorf("unexpected tool message: %+v", msgs[2])
	}

	calls := p.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(calls))
	}
	if calls[0].Messages[0].Role != session.RoleSystem {
		t.Error("first message should be the system prompt")
	}
	if len(calls[0].Tools) != 1 || calls[0].Tools[0].Name != "echo" {
		t.Errorf("tools not passed: %+v", calls[0].Tools)
	}
	last := calls[1].Messages[len(calls[1].Messages)-1]
	if last.Role != session.RoleTool || last.Content != "echo: hi" {
		t.Errorf("second call should end with the tool result, got %+v", last)
	}
}

func TestRunIterationCap(t *testing.T) {
	p := &fakeProvider{fallback: toolCall("loop", "echo", `{"text":"again"}`)}
	env := newTestEnv(t, p, func(cfg *config.Config, _ *Options) { cfg.MaxIterations = 3 })

	got := env.agent.Run(context.Background(), "never stop")
	if got != "[agent] Max tool iterations reached (3)" {
		t.Fatalf("Run = %q", got)
	}
	if n := len(p.calls()); n != 3 {
		t.Errorf("expected 3 provider calls, got %d", n)
	}
}

func TestRunToolFailureBecomesResult(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{toolCall("c1", "missing_tool", `{}`), reply("ok")}}
	env := newTestEnv(t, p)

	if got := env.agent.Run(context.Background(), "try it"); got != "ok" {
		t.Fatalf("Run = %q", got)
	}
	tool := env.logged(t)[2]
	if !strings.HasPrefix(tool.Content, "[error] unknown tool") {
		t.Errorf("expected inline error, got %q", tool.Content)
	}
}

func TestRunTruncatesLargeToolOutput(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{toolCall("c1", "echo", `{}`), reply("ok")}}
	env := newTestEnv(t, p, func(cfg *config.Config, o *Options) {
		cfg.MaxToolOutput = 300
		o.Tools = tools.NewRegistry()
		o.Tools.Register(&echoTool{payload: strings.Repeat("output line\n", 500)})
	})

	env.agent.Run(context.Background(), "dump")
	tool := env.logged(t)[2]
	if !strings.Contains(tool.Content, "...[trimmed 6000 chars") {
		t.Fatalf("tool output not truncated: %d chars", len(tool.Content))
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{fail("429 rate limit"), fail("503 overloaded"), reply("finally")}}
	env := newTestEnv(t, p)

	if got := env.agent.Run(context.Background(), "hello"); got != "finally" {
		t.Fatalf("Run = %q", got)
	}
	if len(env.delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %v", env.delays)
	}
	if env.delays[1] != 2*env.delays[0] {
		t.Errorf("backoff should double: %v", env.delays)
	}
}

func TestRunRetriesExhausted(t *testing.T) {
	p := &fakeProvider{fallback: fail("429 rate limit")}
	env := newTestEnv(t, p, func(cfg *config.Config, _ *Options) { cfg.Budget.MaxRetries = 2 })

	got := env.agent.Run(context.Background(), "hello")
	if !strings.HasPrefix(got, "[error] Provider call failed: ") || !strings.Contains(got, "429") {
		t.Fatalf("Run = %q", got)
	}
	if n := len(p.calls()); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestRunNonRetryableFailsFast(t *testing.T) {
	p := &fakeProvider{fallback: fail("401 unauthorized")}
	env := newTestEnv(t, p)

	var errorHooks int
	env.hooks.Register(hooks.PostProviderError, "count", 0, func(ctx context.Context, d hooks.Data) (hooks.Data, error) {
		errorHooks++
		return nil, nil
	})

	got := env.agent.Run(context.Background(), "hello")
	if !strings.HasPrefix(got, "[error] Provider call failed:") {
		t.Fatalf("Run = %q", got)
	}
	if n := len(p.calls()); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}
	if errorHooks != 1 {
		t.Errorf("post_provider_error fired %d times", errorHooks)
	}
	if len(env.delays) != 0 {
		t.Errorf("unexpected sleeps: %v", env.delays)
	}
}

func seedHistory(t *testing.T, store *session.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		if err := store.Log(context.Background(), session.Message{Role: role, Content: strings.Repeat("history ", 10)}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
}

func TestRunContextOverflowCompactsAndRetries(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{
		fail("This model's maximum context length is 8192 tokens"),
		reply("earlier we talked about history"),
		reply("recovered"),
	}}
	env := newTestEnv(t, p)
	seedHistory(t, env.store, 20)

	got := env.agent.Run(context.Background(), "continue")
	if got != "recovered" {
		t.Fatalf("Run = %q", got)
	}

	calls := p.calls()
	if len(calls) != 3 {
		t.Fatalf("expected overflow, summary and retry calls, got %d", len(calls))
	}
	if calls[1].Messages[0].Content != compactInstruction {
		t.Error("second call should be the summarization request")
	}
	retried := calls[2].Messages
	// system + summary + 9 kept
	if len(retried) != 11 {
		t.Fatalf("retry sent %d messages, want 11", len(retried))
	}
	if !strings.HasPrefix(retried[1].Content, "[Compacted: 12 messages → LLM summary]") {
		t.Errorf("unexpected compaction message: %q", retried[1].Content)
	}
	if len(env.delays) != 0 {
		t.Error("overflow retry should not back off")
	}
}

func TestRunContextOverflowWithoutCompaction(t *testing.T) {
	p := &fakeProvider{fallback: fail("prompt is too long")}
	env := newTestEnv(t, p)

	got := env.agent.Run(context.Background(), "hi")
	if !strings.HasPrefix(got, "[error] Provider call failed:") {
		t.Fatalf("Run = %q", got)
	}
	if n := len(p.calls()); n != 1 {
		t.Errorf("nothing to compact, expected 1 call, got %d", n)
	}
}

// smallBudget sets a 4000-token window with a 256-token reply reserve
func smallBudget(reserve, pruneEvery int) func(*config.Config, *Options) {
	return func(cfg *config.Config, _ *Options) {
		cfg.MaxTokens = 256
		cfg.MaxToolOutput = 100000
		cfg.Budget.ContextTokens = 4000
		cfg.Budget.CompactReserveTokens = reserve
		cfg.Budget.KeepRecent = 1
		cfg.Budget.SoftRatio = 0.3
		cfg.Budget.HardRatio = 0.9
		cfg.Budget.HeadChars = 20
		cfg.Budget.TailChars = 20
		cfg.Budget.PruneEvery = pruneEvery
	}
}

func roles(msgs []session.Message) string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return strings.Join(out, ",")
}

// assertPaired fails when a tool result is sent without the call that produced it
func assertPaired(t *testing.T, msgs []session.Message) {
	t.Helper()
	calls := make(map[string]bool)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			calls[tc.ID] = true
		}
		if m.Role == session.RoleTool && !calls[m.ToolCallID] {
			t.Errorf("tool result %q sent without its call: %s", m.ToolCallID, roles(msgs))
		}
	}
}

func TestRunCompactsHistoryBeforeFirstCall(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{reply("user pasted a long log"), reply("final")}}
	env := newTestEnv(t, p, smallBudget(3500, 3))

	ctx := context.Background()
	history := []session.Message{
		{Role: session.RoleUser, Content: strings.Repeat("x", 5000)},
		{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{{ID: "c1", Name: "echo", Arguments: `{}`}}},
		{Role: session.RoleTool, ToolCallID: "c1", Content: "ok"},
		{Role: session.RoleAssistant, Content: "done"},
	}
	for _, m := range history {
		if err := env.store.Log(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	if got := env.agent.Run(ctx, "next"); got != "final" {
		t.Fatalf("Run = %q", got)
	}

	calls := p.calls()
	if len(calls) != 2 {
		t.Fatalf("expected summary and main calls, got %d", len(calls))
	}
	if calls[0].Messages[0].Content != compactInstruction {
		t.Fatal("first call should be the summarization request")
	}
	sent := calls[1].Messages
	if !strings.HasPrefix(sent[1].Content, "[Compacted: 2 messages → LLM summary]") {
		t.Errorf("unexpected summary message: %q", sent[1].Content)
	}
	// the call for c1 was summarized away, so its result must go too
	if got := roles(sent); got != "system,user,assistant,user" {
		t.Errorf("sent roles = %s", got)
	}
	assertPaired(t, sent)
}

func TestRunCompactsWhenToolOutputOverflowsWindow(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{
		toolCall("c1", "echo", `{}`),
		reply("earlier history"),
		reply("done"),
	}}
	env := newTestEnv(t, p, smallBudget(200, 3), func(cfg *config.Config, o *Options) {
		o.Tools = tools.NewRegistry()
		o.Tools.Register(&echoTool{payload: strings.Repeat("output line\n", 2000)})
	})
	seedHistory(t, env.store, 6)

	if got := env.agent.Run(context.Background(), "dump"); got != "done" {
		t.Fatalf("Run = %q", got)
	}

	calls := p.calls()
	if len(calls) != 3 {
		t.Fatalf("expected tool, summary and final calls, got %d", len(calls))
	}
	if n := len(calls[0].Messages); n != 8 {
		t.Errorf("first call should carry full history, got %d messages", n)
	}
	if calls[1].Messages[0].Content != compactInstruction {
		t.Fatal("second call should be the summarization request")
	}
	sent := calls[2].Messages
	if !strings.HasPrefix(sent[1].Content, "[Compacted: 6 messages → LLM summary]") {
		t.Errorf("unexpected summary message: %q", sent[1].Content)
	}
	if got := roles(sent); got != "system,user,user,assistant,tool" {
		t.Errorf("sent roles = %s", got)
	}
	if len(sent[4].Content) != 24000 {
		t.Errorf("recent tool result should be untouched, got %d chars", len(sent[4].Content))
	}
	assertPaired(t, sent)
}

func TestRunPrunesEveryNIterations(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{
		toolCall("c1", "echo", `{}`),
		toolCall("c2", "echo", `{}`),
		reply("done"),
	}}
	payload := strings.Repeat("output line\n", 500)
	env := newTestEnv(t, p, smallBudget(200, 2), func(cfg *config.Config, o *Options) {
		cfg.Budget.AutoCompact = false
		o.Tools = tools.NewRegistry()
		o.Tools.Register(&echoTool{payload: payload})
	})

	if got := env.agent.Run(context.Background(), "twice"); got != "done" {
		t.Fatalf("Run = %q", got)
	}

	calls := p.calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	// after one iteration nothing is pruned yet
	if got := calls[1].Messages[3].Content; got != payload {
		t.Errorf("c1 result trimmed too early: %d chars", len(got))
	}
	// after the second iteration the older result is soft-trimmed
	third := calls[2].Messages
	if got := roles(third); got != "system,user,assistant,tool,assistant,tool" {
		t.Fatalf("sent roles = %s", got)
	}
	if !strings.Contains(third[3].Content, "...[trimmed 6000 chars") {
		t.Errorf("c1 result not trimmed: %d chars", len(third[3].Content))
	}
	if third[5].Content != payload {
		t.Errorf("latest result should be protected, got %d chars", len(third[5].Content))
	}

	// the stored log keeps the full output
	if logged := env.logged(t); logged[2].Content != payload {
		t.Error("pruning must not rewrite the session log")
	}
}

func TestRunHooksRewrite(t *testing.T) {
	p := &fakeProvider{queue: []chatFunc{toolCall("c1", "echo", `{"text":"original"}`), reply("ok")}}
	env := newTestEnv(t, p)

	env.hooks.Register(hooks.PreUserMessage, "rewrite", 0, func(ctx context.Context, d hooks.Data) (hooks.Data, error) {
		return hooks.Data{"content": "rewritten: " + d.String("content")}, nil
	})
	env.hooks.Register(hooks.PreToolCall, "args", 0, func(ctx context.Context, d hooks.Data) (hooks.Data, error) {
		return hooks.Data{"name": d.String("name"), "arguments": `{"text":"patched"}`}, nil
	})
	env.hooks.Register(hooks.PostToolCall, "result", 0, func(ctx context.Context, d hooks.Data) (hooks.Data, error) {
		return hooks.Data{"result": strings.ToUpper(d.String("result"))}, nil
	})
	var final string
	env.hooks.Register(hooks.PostAssistantMessage, "capture", 0, func(ctx context.Context, d hooks.Data) (hooks.Data, error) {
		final = d.String("content")
		return nil, nil
	})

	env.agent.Run(context.Background(), "hello")

	msgs := env.logged(t)
	if msgs[0].Content != "rewritten: hello" {
		t.Errorf("user message = %q", msgs[0].Content)
	}
	if msgs[2].Content != "ECHO: PATCHED" {
		t.Errorf("tool result = %q", msgs[2].Content)
	}
	if final != "ok" {
		t.Errorf("post_assistant_message saw %q", final)
	}
}

func TestRunSeedsHistory(t *testing.T) {
	p := &fakeProvider{fallback: reply("ok")}
	env := newTestEnv(t, p, func(cfg *config.Config, _ *Options) { cfg.HistoryMessages = 2 })
	seedHistory(t, env.store, 5)

	env.agent.Run(context.Background(), "new question")

	msgs := p.calls()[0].Messages
	// system + 2 recent + new user
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[3].Content != "new question" {
		t.Errorf("last message = %q", msgs[3].Content)
	}
}

type staticInbox struct {
	msgs []team.Message
	name string
}

func (s *staticInbox) ReadUnread(ctx context.Context, name string) ([]team.Message, error) {
	s.name = name
	out := s.msgs
	s.msgs = nil
	return out, nil
}

func TestRunInjectsInbox(t *testing.T) {
	inbox := &staticInbox{msgs: []team.Message{
		{From: "bob", Text: `{"type":"idle_notification","from":"bob","idleReason":"available"}`},
		{From: "bob", Text: "tests pass"},
		{From: "carol", Text: `{"type":"shutdown_approved","from":"carol"}`},
	}}
	p := &fakeProvider{fallback: reply("noted")}
	env := newTestEnv(t, p, func(_ *config.Config, o *Options) {
		o.Inbox = inbox
		o.InboxName = "lead"
	})

	env.agent.Run(context.Background(), "status?")

	if inbox.name != "lead" {
		t.Errorf("inbox read for %q", inbox.name)
	}
	msgs := p.calls()[0].Messages
	tail := msgs[len(msgs)-2:]
	if tail[0].Content != "[Team message from bob]: tests pass" {
		t.Errorf("unexpected inbox message: %q", tail[0].Content)
	}
	if tail[1].Content != "[Team] carol has shut down." {
		t.Errorf("unexpected inbox message: %q", tail[1].Content)
	}
}

func TestInboxText(t *testing.T) {
	text, ok := InboxText(team.Message{From: "lead", Text: `{"type":"shutdown_request","from":"lead"}`})
	if !ok || text != "[Team] Shutdown request from lead" {
		t.Errorf("got %q, %v", text, ok)
	}
	if _, ok := InboxText(team.Message{From: "x", Text: `{"type":"idle_notification"}`}); ok {
		t.Error("idle notifications should be dropped")
	}
}

func TestForceCompact(t *testing.T) {
	p := &fakeProvider{fallback: reply("condensed")}
	env := newTestEnv(t, p)
	seedHistory(t, env.store, 20)

	before, after, compacted, err := env.agent.ForceCompact(context.Background())
	if err != nil {
		t.Fatalf("ForceCompact failed: %v", err)
	}
	if !compacted || after >= before {
		t.Fatalf("expected compaction, got %v (%d -> %d)", compacted, before, after)
	}
	msgs := env.logged(t)
	if len(msgs) != 10 {
		t.Fatalf("expected summary + 9 kept messages, got %d", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].Content, "[Compacted: 11 messages → LLM summary]") {
		t.Errorf("unexpected summary: %q", msgs[0].Content)
	}
}

func TestForceCompactNothingToDo(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})
	seedHistory(t, env.store, 3)

	_, _, compacted, err := env.agent.ForceCompact(context.Background())
	if err != nil || compacted {
		t.Fatalf("expected no-op, got %v, %v", compacted, err)
	}
}

func TestResetAndModel(t *testing.T) {
	p := &fakeProvider{fallback: reply("ok")}
	env := newTestEnv(t, p)

	if env.agent.Model() != env.cfg.Model {
		t.Errorf("default model = %q", env.agent.Model())
	}
	env.agent.SetModel("other-model")
	env.agent.Run(context.Background(), "hi")
	if p.calls()[0].Model != "other-model" {
		t.Errorf("override not sent: %q", p.calls()[0].Model)
	}

	if err := env.agent.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n := len(env.logged(t)); n != 0 {
		t.Errorf("expected empty session, got %d messages", n)
	}
}

func TestStatusAndContextReport(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})
	status := env.agent.Status(context.Background())
	for _, want := range []string{"Model    : " + env.cfg.Model, "Provider : fake (1 configured)", "1 tools", "Compact  : auto (LLM)"} {
		if !strings.Contains(status, want) {
			t.Errorf("status missing %q:\n%s", want, status)
		}
	}

	report := env.agent.ContextReport(context.Background())
	if !strings.Contains(report, "Context window: 128000 tokens") {
		t.Errorf("unexpected context report:\n%s", report)
	}
}
