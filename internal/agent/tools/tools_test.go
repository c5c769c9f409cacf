package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

type echoTool struct {
	name    string
	isError bool
}

func (t *echoTool) Name() string            { return t.name }
func (t *echoTool) Description() string     { return "echo " + t.name }
func (t *echoTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t *echoTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: string(input), IsError: t.isError}, nil
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "b"})
	r.Register(&echoTool{name: "a"})
	r.Register(&echoTool{name: "bad", isError: true})

	out, err := r.Execute(context.Background(), "a", `{"x":1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"x":1}` {
		t.Errorf("got %q", out)
	}

	out, err = r.Execute(context.Background(), "a", "")
	if err != nil || out != `{}` {
		t.Errorf("empty arguments: got %q, %v", out, err)
	}

	out, err = r.Execute(context.Background(), "bad", `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "[error] ") {
		t.Errorf("expected [error] prefix, got %q", out)
	}

	_, err = r.Execute(context.Background(), "missing", `{}`)
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistryListSortedAndChanges(t *testing.T) {
	r := NewRegistry()
	var added, removed []string
	r.OnChange(func(a, rm []string) {
		added = append(added, a...)
		removed = append(removed, rm...)
	})

	r.Register(&echoTool{name: "zeta"})
	r.Register(&echoTool{name: "alpha"})
	defs := r.List()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Fatalf("unexpected list: %+v", defs)
	}

	r.Unregister("zeta")
	r.Unregister("zeta")
	if got := strings.Join(r.Names(), ","); got != "alpha" {
		t.Errorf("names = %s", got)
	}
	if len(added) != 2 || len(removed) != 1 {
		t.Errorf("listener saw added=%v removed=%v", added, removed)
	}
}

func TestFileToolsStayInWorkspace(t *testing.T) {
	ws := t.TempDir()
	r := NewRegistry()
	RegisterBuiltins(r, ws)
	ctx := context.Background()

	if _, err := r.Execute(ctx, "write_file", `{"path":"notes/a.txt","content":"hello"}`); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Execute(ctx, "write_file", `{"path":"notes/a.txt","content":" world","append":true}`); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(ws, "notes", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("file content = %q", data)
	}

	out, _ := r.Execute(ctx, "read_file", `{"path":"notes/a.txt"}`)
	if out != "hello world" {
		t.Errorf("read_file = %q", out)
	}

	out, _ = r.Execute(ctx, "list_dir", `{}`)
	if out != "notes/" {
		t.Errorf("list_dir = %q", out)
	}

	out, _ = r.Execute(ctx, "read_file", `{"path":"../outside.txt"}`)
	if !strings.HasPrefix(out, "[error] ") || !strings.Contains(out, "outside the workspace") {
		t.Errorf("expected workspace error, got %q", out)
	}
}

func TestExecTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell")
	}
	ws := t.TempDir()
	tool := NewExecTool(ws)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"pwd"}`))
	if err != nil {
		t.Fatal(err)
	}
	resolved, _ := filepath.EvalSymlinks(ws)
	if got := strings.TrimSpace(res.Content); got != ws && got != resolved {
		t.Errorf("pwd = %q, want %q", got, ws)
	}

	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"command":"echo oops >&2; exit 2"}`))
	if !res.IsError || !strings.Contains(res.Content, "code 2") || !strings.Contains(res.Content, "STDERR:\noops") {
		t.Errorf("unexpected result: %+v", res)
	}

	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"command":""}`))
	if !res.IsError {
		t.Error("expected error for empty command")
	}
}
