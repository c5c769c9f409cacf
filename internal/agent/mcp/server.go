package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/neboloop/skiff/internal/agent/tools"
	"github.com/neboloop/skiff/internal/logging"
)

// Server exposes a tool registry over MCP streamable HTTP
type Server struct {
	registry        *tools.Registry
	server          *mcp.Server
	mu              sync.Mutex
	registeredTools map[string]bool
}

// NewServer creates a server that mirrors registry, including later changes
func NewServer(registry *tools.Registry, version string) *Server {
	s := &Server{
		registry:        registry,
		registeredTools: make(map[string]bool),
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "skiff",
		Version: version,
	}, nil)

	s.mu.Lock()
	for _, def := range registry.List() {
		s.addToolLocked(def.Name, def.Description, def.InputSchema)
	}
	s.mu.Unlock()

	// AddTool/RemoveTools notify connected clients with tools/list_changed
	registry.OnChange(s.syncTools)

	return s
}

// addToolLocked adds a single tool to the MCP server (caller must hold s.mu)
func (s *Server) addToolLocked(name, description string, inputSchema json.RawMessage) {
	var schemaMap map[string]any
	if err := json.Unmarshal(inputSchema, &schemaMap); err != nil {
		logging.Warnf("[mcp] failed to parse schema for %s: %v", name, err)
		return
	}

	s.server.AddTool(&mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schemaMap,
	}, s.toolHandler(name))
	s.registeredTools[name] = true
}

func (s *Server) syncTools(added, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var gone []string
	for _, name := range removed {
		if s.registeredTools[name] {
			gone = append(gone, name)
			delete(s.registeredTools, name)
		}
	}
	if len(gone) > 0 {
		s.server.RemoveTools(gone...)
	}

	for _, name := range added {
		tool, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		s.addToolLocked(tool.Name(), tool.Description(), tool.Schema())
	}
}

func (s *Server) toolHandler(toolName string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (retResult *mcp.CallToolResult, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logging.Errorf("[mcp] panic in tool %s: %v", toolName, r)
				retResult = &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("tool panicked: %v", r)}},
					IsError: true,
				}
				retErr = nil
			}
		}()

		out, err := s.registry.Execute(ctx, toolName, string(req.Params.Arguments))
		if err != nil {
			if errors.Is(err, tools.ErrUnknownTool) {
				logging.Warnf("[mcp] %v", err)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		text, isErr := strings.CutPrefix(out, "[error] ")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: isErr,
		}, nil
	}
}

// Handler returns an HTTP handler for the MCP server
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
