package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/neboloop/skiff/internal/logging"
)

const (
	defaultExecTimeout = 120 * time.Second
	maxExecOutput      = 50000
)

// ExecTool runs shell commands inside the workspace
type ExecTool struct {
	workspace string
}

// NewExecTool creates an exec tool rooted at workspace
func NewExecTool(workspace string) *ExecTool {
	return &ExecTool{workspace: workspace}
}

// Name returns the tool name
func (t *ExecTool) Name() string {
	return "exec"
}

// Description returns the tool description
func (t *ExecTool) Description() string {
	return fmt.Sprintf(`Execute a shell command (%s) in the workspace directory.
Returns stdout, then stderr under a STDERR: header. Non-zero exits are reported as errors.`, ShellName())
}

// Schema returns the JSON schema for the tool input
func (t *ExecTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The shell command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Timeout in seconds (default: 120)"
			}
		},
		"required": ["command"]
	}`)
}

// ExecInput represents the tool input
type ExecInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

// Execute runs the command
func (t *ExecTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in ExecInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return &ToolResult{Content: "command is required", IsError: true}, nil
	}
	if reason := CheckCommand(in.Command, t.workspace); reason != "" {
		logging.Warnf("[exec] Blocked command %q: %s", in.Command, reason)
		return &ToolResult{Content: "BLOCKED: " + reason, IsError: true}, nil
	}

	timeout := defaultExecTimeout
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell, shellArgs := ShellCommand()
	cmd := exec.CommandContext(ctx, shell, append(shellArgs, in.Command)...)
	cmd.Dir = t.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var result strings.Builder
	result.WriteString(stdout.String())
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(stderr.String())
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &ToolResult{Content: fmt.Sprintf("Command timed out after %v\n%s", timeout, result.String()), IsError: true}, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ToolResult{Content: fmt.Sprintf("Command exited with code %d\n%s", exitErr.ExitCode(), result.String()), IsError: true}, nil
		}
		return &ToolResult{Content: fmt.Sprintf("Command failed: %v\n%s", err, result.String()), IsError: true}, nil
	}

	output := result.String()
	if output == "" {
		output = "(no output)"
	}
	if len(output) > maxExecOutput {
		output = output[:maxExecOutput] + "\n... (output truncated)"
	}
	return &ToolResult{Content: output}, nil
}
