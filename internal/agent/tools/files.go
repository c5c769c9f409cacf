package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxReadBytes = 256 * 1024

// resolvePath joins p onto workspace and rejects paths that escape it
func resolvePath(workspace, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		p = "."
	}
	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, p)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", p)
	}
	return full, nil
}

type pathInput struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Append  bool   `json:"append,omitempty"`
}

func decodePathInput(input json.RawMessage) (pathInput, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return in, fmt.Errorf("invalid input: %w", err)
	}
	return in, nil
}

// ReadFileTool reads a workspace file
type ReadFileTool struct{ workspace string }

// WriteFileTool writes or appends to a workspace file
type WriteFileTool struct{ workspace string }

// ListDirTool lists a workspace directory
type ListDirTool struct{ workspace string }

func NewReadFileTool(workspace string) *ReadFileTool   { return &ReadFileTool{workspace: workspace} }
func NewWriteFileTool(workspace string) *WriteFileTool { return &WriteFileTool{workspace: workspace} }
func NewListDirTool(workspace string) *ListDirTool     { return &ListDirTool{workspace: workspace} }

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read a text file from the workspace. Paths are relative to the workspace root."
}
func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path"}},"required":["path"]}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	in, err := decodePathInput(input)
	if err != nil {
		return nil, err
	}
	path, err := resolvePath(t.workspace, in.Path)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	if len(data) > maxReadBytes {
		return &ToolResult{Content: string(data[:maxReadBytes]) + fmt.Sprintf("\n... (file truncated, %d bytes total)", len(data))}, nil
	}
	return &ToolResult{Content: string(data)}, nil
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a workspace file, creating parent directories. Set append to add to the end."
}
func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path"},"content":{"type":"string","description":"Content to write"},"append":{"type":"boolean","description":"Append instead of overwrite"}},"required":["path","content"]}`)
}

func (t *WriteFileTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	in, err := decodePathInput(input)
	if err != nil {
		return nil, err
	}
	path, err := resolvePath(t.workspace, in.Path)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if in.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	defer f.Close()
	if _, err := f.WriteString(in.Content); err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.Path)}, nil
}

func (t *ListDirTool) Name() string { return "list_dir" }
func (t *ListDirTool) Description() string {
	return "List entries of a workspace directory. Directories end with /."
}
func (t *ListDirTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Directory path (default: workspace root)"}}}`)
}

func (t *ListDirTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	in, err := decodePathInput(input)
	if err != nil {
		return nil, err
	}
	path, err := resolvePath(t.workspace, in.Path)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return &ToolResult{Content: "(empty)"}, nil
	}
	return &ToolResult{Content: strings.Join(names, "\n")}, nil
}

// RegisterBuiltins registers the workspace tools
func RegisterBuiltins(r *Registry, workspace string) {
	r.Register(NewExecTool(workspace))
	r.Register(NewReadFileTool(workspace))
	r.Register(NewWriteFileTool(workspace))
	r.Register(NewListDirTool(workspace))
}
