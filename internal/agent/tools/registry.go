package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/neboloop/skiff/internal/agent/ai"
	"github.com/neboloop/skiff/internal/logging"
)

// ErrUnknownTool is returned by Execute for names that are not registered
var ErrUnknownTool = errors.New("unknown tool")

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Tool interface that all tools must implement
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a description for the AI
	Description() string

	// Schema returns the JSON schema for the tool's input
	Schema() json.RawMessage

	// Execute runs the tool with the given input
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// ChangeListener is called when tools are added or removed from the registry.
// added contains names of new/replaced tools, removed contains names of deleted tools.
type ChangeListener func(added []string, removed []string)

// Registry manages available tools
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	listeners []ChangeListener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// OnChange registers a listener that is called when tools are added or removed.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// notifyListeners calls all change listeners (must NOT hold lock).
func (r *Registry) notifyListeners(added, removed []string) {
	r.mu.RLock()
	listeners := make([]ChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(added, removed)
	}
}

// Register adds a tool, replacing any tool with the same name
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	if existing, ok := r.tools[tool.Name()]; ok {
		logging.Warnf("[Registry] tool %q already registered (%T), overwritten by %T", tool.Name(), existing, tool)
	}
	r.tools[tool.Name()] = tool
	r.mu.Unlock()

	r.notifyListeners([]string{tool.Name()}, nil)
}

// Unregister removes a tool from the registry by name
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, existed := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()

	if existed {
		r.notifyListeners(nil, []string{name})
	}
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns registered tool names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools as AI tool definitions, sorted by name
func (r *Registry) List() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ai.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool by name. Unknown names return ErrUnknownTool; a tool
// result flagged as an error comes back as text prefixed with "[error] ".
func (r *Registry) Execute(ctx context.Context, name, arguments string) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s (available: %s)", ErrUnknownTool, name, strings.Join(r.Names(), ", "))
	}

	input := json.RawMessage(arguments)
	if strings.TrimSpace(arguments) == "" {
		input = json.RawMessage(`{}`)
	}

	logging.Debugf("[Registry] executing tool: %s", name)
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	if result.IsError {
		return "[error] " + result.Content, nil
	}
	return result.Content, nil
}
