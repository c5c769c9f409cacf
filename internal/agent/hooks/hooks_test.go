package hooks

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/skiff/internal/agent/config"
)

func TestRunnerPriorityAndPipeline(t *testing.T) {
	r := NewRunner()
	var order []string

	r.Register(PreUserMessage, "second", 10, func(ctx context.Context, d Data) (Data, error) {
		order = append(order, "second")
		d["content"] = d.String("content") + " b"
		return d, nil
	})
	r.Register(PreUserMessage, "first", 1, func(ctx context.Context, d Data) (Data, error) {
		order = append(order, "first")
		return Data{"content": d.String("content") + " a"}, nil
	})

	out := r.Run(context.Background(), PreUserMessage, Data{"content": "hi"})
	assert.Equal(t, "hi a b", out.String("content"))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.True(t, r.Has(PreUserMessage))
	assert.False(t, r.Has(PostToolCall))
	assert.Equal(t, 2, r.Count())
}

func TestRunnerIsolatesFailures(t *testing.T) {
	r := NewRunner()
	r.Register(PostToolCall, "panics", 0, func(ctx context.Context, d Data) (Data, error) {
		panic("boom")
	})
	r.Register(PostToolCall, "errors", 1, func(ctx context.Context, d Data) (Data, error) {
		return Data{"result": "lost"}, errors.New("nope")
	})
	r.Register(PostToolCall, "nil", 2, func(ctx context.Context, d Data) (Data, error) {
		return nil, nil
	})
	r.Register(PostToolCall, "ok", 3, func(ctx context.Context, d Data) (Data, error) {
		d["seen"] = true
		return d, nil
	})

	out := r.Run(context.Background(), PostToolCall, Data{"result": "x"})
	assert.Equal(t, "x", out.String("result"))
	assert.Equal(t, true, out["seen"])

	assert.NotPanics(t, func() {
		r.Fire(context.Background(), PostToolCall, Data{})
	})
}

func TestRunnerNilAndEmpty(t *testing.T) {
	var r *Runner
	d := Data{"a": 1}
	assert.Equal(t, d, r.Run(context.Background(), AgentStart, d))
	assert.False(t, r.Has(AgentStart))
	assert.Equal(t, 0, r.Count())
	r.Fire(context.Background(), AgentStart, d)
}

func TestParseType(t *testing.T) {
	typ, ok := ParseType("post_provider_error")
	assert.True(t, ok)
	assert.Equal(t, PostProviderError, typ)

	_, ok = ParseType("not_a_hook")
	assert.False(t, ok)
}

func TestShellHook(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	ctx := context.Background()

	rewrite := Shell(PreUserMessage, `printf '{"content":"%s"}' "$SKIFF_HOOK"`, 0)
	out, err := rewrite(ctx, Data{"content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "pre_user_message", out.String("content"))

	echo := Shell(PreUserMessage, `cat`, 0)
	out, err = echo(ctx, Data{"content": "same"})
	require.NoError(t, err)
	assert.Equal(t, "same", out.String("content"))

	plain := Shell(PreUserMessage, `echo not json`, 0)
	out, err = plain(ctx, Data{"content": "kept"})
	require.NoError(t, err)
	assert.Nil(t, out)

	failing := Shell(PreUserMessage, `exit 3`, 0)
	_, err = failing(ctx, Data{})
	assert.Error(t, err)
}

func TestLoadFromConfig(t *testing.T) {
	r := NewRunner()
	err := LoadFromConfig(r, []config.HookConfig{
		{Type: "pre_tool_call", Command: "cat", Priority: 5},
		{Type: "session_end", Command: "true"},
	})
	require.NoError(t, err)
	assert.True(t, r.Has(PreToolCall))
	assert.True(t, r.Has(SessionEnd))

	err = LoadFromConfig(NewRunner(), []config.HookConfig{{Type: "bogus", Command: "cat"}})
	assert.Error(t, err)

	err = LoadFromConfig(NewRunner(), []config.HookConfig{{Type: "agent_start"}})
	assert.Error(t, err)
}
