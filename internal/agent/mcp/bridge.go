package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/agent/tools"
	"github.com/neboloop/skiff/internal/logging"
)

// Bridge connects to external MCP servers and registers their tools
// as proxy tools in the agent's tool registry.
type Bridge struct {
	mu          sync.Mutex
	connections map[string]*connection
	registry    *tools.Registry
	version     string
}

type connection struct {
	session   *mcp.ClientSession
	toolNames []string
}

// NewBridge creates a bridge that registers into registry
func NewBridge(registry *tools.Registry, version string) *Bridge {
	return &Bridge{
		connections: make(map[string]*connection),
		registry:    registry,
		version:     version,
	}
}

// headerTransport adds static headers (e.g. Authorization) to every request
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	for k, v := range t.headers {
		req2.Header.Set(k, v)
	}
	return t.base.RoundTrip(req2)
}

// ConnectAll connects every configured server in name order. Failures are
// logged and the last one is returned; other servers still connect.
func (b *Bridge) ConnectAll(ctx context.Context, servers map[string]config.MCPServerConfig) error {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var lastErr error
	for _, name := range names {
		if err := b.Connect(ctx, name, servers[name]); err != nil {
			logging.Warnf("[mcp] failed to connect %s: %v", name, err)
			lastErr = err
		}
	}
	return lastErr
}

// Connect opens a session to one server, lists its tools and registers them
func (b *Bridge) Connect(ctx context.Context, name string, cfg config.MCPServerConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("mcp server %s: url is required", name)
	}
	b.Disconnect(name)

	var rt http.RoundTripper = http.DefaultTransport
	if len(cfg.Headers) > 0 {
		rt = &headerTransport{base: http.DefaultTransport, headers: cfg.Headers}
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "skiff", Version: b.version}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   cfg.URL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second, Transport: rt},
	}, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", name, err)
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		session.Close()
		return fmt.Errorf("list tools on %s: %w", name, err)
	}

	conn := &connection{session: session, toolNames: make([]string, 0, len(result.Tools))}
	for _, mt := range result.Tools {
		var schema json.RawMessage
		if mt.InputSchema != nil {
			schema, _ = json.Marshal(mt.InputSchema)
		}
		proxy := &proxyTool{
			name:         ToolName(name, mt.Name),
			originalName: mt.Name,
			description:  mt.Description,
			inputSchema:  schema,
			session:      session,
		}
		b.registry.Register(proxy)
		conn.toolNames = append(conn.toolNames, proxy.name)
	}

	b.mu.Lock()
	b.connections[name] = conn
	b.mu.Unlock()

	logging.Infof("[mcp] connected %s: %d tools registered", name, len(conn.toolNames))
	return nil
}

// Disconnect removes a server's proxy tools and closes its session
func (b *Bridge) Disconnect(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectLocked(name)
}

func (b *Bridge) disconnectLocked(name string) {
	conn, ok := b.connections[name]
	if !ok {
		return
	}
	for _, toolName := range conn.toolNames {
		b.registry.Unregister(toolName)
	}
	conn.session.Close()
	delete(b.connections, name)
	logging.Debugf("[mcp] disconnected %s: %d tools unregistered", name, len(conn.toolNames))
}

// Close disconnects all servers
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name := range b.connections {
		b.disconnectLocked(name)
	}
}

// ToolName namespaces a remote tool: mcp_<server>_<tool>
func ToolName(server, tool string) string {
	s := strings.ReplaceAll(strings.ToLower(server), " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return fmt.Sprintf("mcp_%s_%s", s, tool)
}

// proxyTool forwards calls to a tool on an external MCP server
type proxyTool struct {
	name         string
	originalName string
	description  string
	inputSchema  json.RawMessage
	session      *mcp.ClientSession
}

func (t *proxyTool) Name() string        { return t.name }
func (t *proxyTool) Description() string { return t.description }

func (t *proxyTool) Schema() json.RawMessage {
	if len(t.inputSchema) > 0 {
		return t.inputSchema
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (t *proxyTool) Execute(ctx context.Context, input json.RawMessage) (*tools.ToolResult, error) {
	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
	}

	result, err := t.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.originalName,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("MCP tool %s: %w", t.originalName, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok && tc.Text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(tc.Text)
		}
	}

	return &tools.ToolResult{Content: sb.String(), IsError: result.IsError}, nil
}
