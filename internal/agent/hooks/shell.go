package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/logging"
)

const defaultShellTimeout = 30 * time.Second

// Shell returns a hook that runs command with the payload as JSON on stdin.
// A JSON object on stdout replaces the payload; any other output leaves it unchanged.
// A non-zero exit is reported as an error.
func Shell(t Type, command string, timeout time.Duration) Func {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	return func(ctx context.Context, data Data) (Data, error) {
		input, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode hook data: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		shell, flag := "sh", "-c"
		if runtime.GOOS == "windows" {
			shell, flag = "cmd.exe", "/C"
		}
		cmd := exec.CommandContext(ctx, shell, flag, command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "SKIFF_HOOK="+string(t))

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("hook timed out after %v: %s", timeout, command)
			}
			return nil, fmt.Errorf("hook %q failed: %w: %s", command, err, strings.TrimSpace(stderr.String()))
		}

		out := bytes.TrimSpace(stdout.Bytes())
		if len(out) == 0 {
			return nil, nil
		}
		var modified Data
		if err := json.Unmarshal(out, &modified); err != nil {
			logging.Debugf("[hooks] non-JSON output from %q ignored", command)
			return nil, nil
		}
		return modified, nil
	}
}

// LoadFromConfig registers a shell hook for every configured entry
func LoadFromConfig(r *Runner, entries []config.HookConfig) error {
	for i, hc := range entries {
		t, ok := ParseType(hc.Type)
		if !ok {
			return fmt.Errorf("hooks[%d]: unknown hook type %q", i, hc.Type)
		}
		if strings.TrimSpace(hc.Command) == "" {
			return fmt.Errorf("hooks[%d]: command is required", i)
		}
		timeout := time.Duration(hc.TimeoutSeconds) * time.Second
		r.Register(t, fmt.Sprintf("shell:%d", i), hc.Priority, Shell(t, hc.Command, timeout))
		logging.Debugf("[hooks] registered %s hook: %s", t, hc.Command)
	}
	return nil
}
