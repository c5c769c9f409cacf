// Package hooks runs user callbacks at fixed points of the agent loop.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/neboloop/skiff/internal/logging"
)

// Type identifies a hook point
type Type string

const (
	AgentStart           Type = "agent_start"
	AgentStop            Type = "agent_stop"
	PreToolCall          Type = "pre_tool_call"
	PostToolCall         Type = "post_tool_call"
	PreAPICall           Type = "pre_api_call"
	PostAPICall          Type = "post_api_call"
	PreUserMessage       Type = "pre_user_message"
	PostAssistantMessage Type = "post_assistant_message"
	PreCompaction        Type = "pre_compaction"
	PostCompaction       Type = "post_compaction"
	PrePrune             Type = "pre_prune"
	PostPrune            Type = "post_prune"
	PreMemorySave        Type = "pre_memory_save"
	PostMemorySave       Type = "post_memory_save"
	PreMemorySearch      Type = "pre_memory_search"
	PostMemorySearch     Type = "post_memory_search"
	PreProviderSelect    Type = "pre_provider_select"
	PostProviderError    Type = "post_provider_error"
	PreTeamMessage       Type = "pre_team_message"
	PostTeamMessage      Type = "post_team_message"
	SessionStart         Type = "session_start"
	SessionEnd           Type = "session_end"
)

var allTypes = []Type{
	AgentStart, AgentStop, PreToolCall, PostToolCall, PreAPICall, PostAPICall,
	PreUserMessage, PostAssistantMessage, PreCompaction, PostCompaction,
	PrePrune, PostPrune, PreMemorySave, PostMemorySave, PreMemorySearch, PostMemorySearch,
	PreProviderSelect, PostProviderError, PreTeamMessage, PostTeamMessage,
	SessionStart, SessionEnd,
}

// ParseType resolves a hook type name
func ParseType(s string) (Type, bool) {
	for _, t := range allTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Data is the JSON-shaped payload passed through hooks
type Data map[string]any

// String returns d[key] as a string, or "" when absent
func (d Data) String(key string) string {
	if d == nil {
		return ""
	}
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Func is a hook callback. Returning nil data leaves the payload unchanged.
type Func func(ctx context.Context, data Data) (Data, error)

type entry struct {
	name     string
	priority int
	fn       Func
}

// Runner holds registered hooks per type
type Runner struct {
	mu    sync.RWMutex
	hooks map[Type][]entry
}

// NewRunner creates an empty runner
func NewRunner() *Runner {
	return &Runner{hooks: make(map[Type][]entry)}
}

// Register adds a hook. Lower priority runs first; ties keep registration order.
func (r *Runner) Register(t Type, name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.hooks[t], entry{name: name, priority: priority, fn: fn})
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority < list[j].priority
	})
	r.hooks[t] = list
}

func (r *Runner) entries(t Type) []entry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.hooks[t]
	out := make([]entry, len(list))
	copy(out, list)
	return out
}

// Fire notifies every hook of t. Results are discarded.
func (r *Runner) Fire(ctx context.Context, t Type, data Data) {
	for _, e := range r.entries(t) {
		call(ctx, t, e, data)
	}
}

// Run pipes data through every hook of t in order and returns the result
func (r *Runner) Run(ctx context.Context, t Type, data Data) Data {
	for _, e := range r.entries(t) {
		if out, ok := call(ctx, t, e, data); ok && out != nil {
			data = out
		}
	}
	return data
}

// Has reports whether any hook is registered for t
func (r *Runner) Has(t Type) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[t]) > 0
}

// Count returns the total number of registered hooks
func (r *Runner) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.hooks {
		n += len(list)
	}
	return n
}

// call invokes one hook, isolating panics and errors
func call(ctx context.Context, t Type, e entry, data Data) (out Data, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Errorf("[hook:%s] %s panicked: %v", e.name, t, rec)
			out, ok = nil, false
		}
	}()
	out, err := e.fn(ctx, data)
	if err != nil {
		logging.Warnf("[hook:%s] %s error: %v", e.name, t, err)
		return nil, false
	}
	return out, true
}
