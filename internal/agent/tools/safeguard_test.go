package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		cmd     string
		blocked bool
	}{
		{"sudo rm -rf /tmp/test", true},
		{"echo hello | sudo tee /tmp/test", true},
		{"ls && sudo apt install foo", true},
		{"ls; sudo reboot", true},
		{"$(sudo cat /etc/shadow)", true},
		{"echo sudo is a word", false},
		{"su", true},
		{"su root", true},
		{"echo | su root", true},
		{"summary", false},
		{"git submodule update", false},
		{"rm -rf /", true},
		{"rm -fr /*", true},
		{"rm -rf --no-preserve-root /", true},
		{"rm -rf ./build", false},
		{"dd if=/dev/zero of=/dev/sda", true},
		{"mkfs.ext4 /dev/sdb1", true},
		{"echo x > /dev/sda", true},
		{"make 2>/dev/null", false},
		{"go test ./... > /dev/null 2>&1", false},
		{":(){ :|:& };:", true},
		{"ls -la", false},
		{"git status", false},
	}

	for _, tc := range cases {
		reason := CheckCommand(tc.cmd, dir)
		if tc.blocked && reason == "" {
			t.Errorf("expected %q to be blocked", tc.cmd)
		}
		if !tc.blocked && reason != "" {
			t.Errorf("expected %q to be allowed, got: %s", tc.cmd, reason)
		}
	}
}

func TestCheckCommandProtectedPaths(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	dir := t.TempDir()

	for _, cmd := range []string{"rm -rf /etc", "rm /usr/bin/env", "chmod 777 /etc/passwd", "chown root:root /etc/hosts"} {
		if CheckCommand(cmd, dir) == "" {
			t.Errorf("expected %q to be blocked", cmd)
		}
	}
	for _, cmd := range []string{"rm -rf notes", "chmod 644 out.txt", "rmdir tmp"} {
		if reason := CheckCommand(cmd, dir); reason != "" {
			t.Errorf("expected %q to be allowed, got: %s", cmd, reason)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	for _, p := range []string{filepath.Join(home, ".ssh"), filepath.Join(home, ".skiff", "data", "skiff.db")} {
		if CheckCommand("rm -f "+p, dir) == "" {
			t.Errorf("expected deleting %s to be blocked", p)
		}
	}
}

func TestExecToolBlocksUnsafeCommands(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	input, _ := json.Marshal(ExecInput{Command: "sudo whoami"})

	res, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || !strings.HasPrefix(res.Content, "BLOCKED: ") {
		t.Errorf("expected a blocked result, got %+v", res)
	}
}
