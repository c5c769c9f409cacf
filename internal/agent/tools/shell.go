package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var bashPaths = []string{"/bin/bash", "/usr/bin/bash", "/usr/local/bin/bash"}

// ShellCommand returns the shell used by the exec tool and its command flag.
// Unix prefers an absolute bash path over whatever "sh" resolves to on PATH.
func ShellCommand() (shell string, args []string) {
	if runtime.GOOS == "windows" {
		return "cmd.exe", []string{"/C"}
	}
	for _, path := range bashPaths {
		if _, err := os.Stat(path); err == nil {
			return path, []string{"-c"}
		}
	}
	return "sh", []string{"-c"}
}

// ShellName returns the shell's short name, e.g. "bash" or "cmd"
func ShellName() string {
	shell, _ := ShellCommand()
	return strings.TrimSuffix(filepath.Base(shell), ".exe")
}
