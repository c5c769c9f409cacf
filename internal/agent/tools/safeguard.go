package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckCommand validates a shell command against hard safety limits before the
// exec tool runs it. Relative paths resolve against dir. It returns "" when the
// command may run, otherwise the reason it was blocked.
func CheckCommand(command, dir string) string {
	cmd := strings.TrimSpace(command)
	lower := strings.ToLower(cmd)

	if hasCommand(lower, "sudo") {
		return "sudo is not permitted; run privileged commands manually in a terminal"
	}
	if hasCommand(lower, "su") {
		return "su is not permitted"
	}
	if isRootWipe(lower) {
		return "cannot delete the root filesystem"
	}
	if strings.Contains(lower, "dd ") && strings.Contains(lower, "of=/dev/") {
		return "cannot write to block devices with dd"
	}
	for _, tool := range []string{"mkfs", "fdisk", "gdisk", "sfdisk", "parted", "wipefs", "diskutil erase"} {
		if strings.HasPrefix(lower, tool) || strings.Contains(lower, " "+tool) {
			return fmt.Sprintf("cannot run %s: disk formatting and partitioning are blocked", tool)
		}
	}
	if strings.Contains(cmd, ":(){ :|:& };:") {
		return "fork bomb detected"
	}
	if writesDevice(lower) {
		return "cannot write to device files"
	}

	fields := strings.Fields(cmd)
	if len(fields) > 1 {
		switch fields[0] {
		case "rm", "rmdir":
			if reason := checkTargets(fields[1:], dir, false); reason != "" {
				return "cannot delete " + reason
			}
		case "chmod", "chown":
			if reason := checkTargets(fields[1:], dir, true); reason != "" {
				return "cannot change permissions on " + reason
			}
		}
	}
	return ""
}

// hasCommand reports whether name is invoked as a command anywhere in the line
func hasCommand(lower, name string) bool {
	if lower == name || strings.HasPrefix(lower, name+" ") || strings.HasPrefix(lower, name+"\t") {
		return true
	}
	for _, sep := range []string{"|", "&&", ";", "||", "$(", "`"} {
		for _, gap := range []string{"", " "} {
			if strings.Contains(lower, sep+gap+name+" ") {
				return true
			}
		}
	}
	return false
}

func isRootWipe(lower string) bool {
	for _, p := range []string{"rm -rf ", "rm -fr ", "rm -rf --no-preserve-root "} {
		idx := strings.Index(lower, p)
		if idx < 0 {
			continue
		}
		target := strings.Fields(lower[idx+len(p):])
		if len(target) > 0 && (target[0] == "/" || target[0] == "/*") {
			return true
		}
	}
	return false
}

func writesDevice(lower string) bool {
	idx := strings.Index(lower, ">")
	for idx >= 0 {
		rest := strings.TrimLeft(lower[idx+1:], " ")
		if strings.HasPrefix(rest, "/dev/") {
			dev := strings.Fields(rest)[0]
			if dev != "/dev/null" && dev != "/dev/stdout" && dev != "/dev/stderr" {
				return true
			}
		}
		next := strings.Index(lower[idx+1:], ">")
		if next < 0 {
			break
		}
		idx += next + 1
	}
	return false
}

// checkTargets checks path arguments; skipMode skips the chmod mode or chown owner
func checkTargets(args []string, dir string, skipMode bool) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if skipMode {
			skipMode = false
			continue
		}
		path := arg
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if reason := protectedPath(filepath.Clean(path)); reason != "" {
			return fmt.Sprintf("%q: %s", arg, reason)
		}
	}
	return ""
}

var systemPrefixes = map[string][]struct{ prefix, reason string }{
	"linux": {
		{"/bin", "core system binaries"},
		{"/sbin", "core system admin binaries"},
		{"/usr/bin", "system binaries"},
		{"/usr/sbin", "system admin binaries"},
		{"/usr/lib", "system libraries"},
		{"/boot", "boot loader and kernel"},
		{"/etc", "system configuration"},
		{"/proc", "kernel process filesystem"},
		{"/sys", "kernel sysfs"},
		{"/dev", "device files"},
		{"/root", "root user home directory"},
		{"/var/lib/dpkg", "package manager database"},
	},
	"darwin": {
		{"/System", "macOS system files"},
		{"/bin", "core system binaries"},
		{"/sbin", "core system admin binaries"},
		{"/usr/bin", "system binaries"},
		{"/usr/lib", "system libraries"},
		{"/Library/LaunchDaemons", "system launch daemons"},
		{"/etc", "system configuration"},
	},
	"windows": {
		{`c:\windows`, "Windows system directory"},
		{`c:\program files`, "installed program files"},
		{`c:\programdata`, "system program data"},
	},
}

// protectedPath returns why an absolute path must not be touched, or ""
func protectedPath(abs string) string {
	if abs == "/" {
		return "the root filesystem"
	}

	goos := runtime.GOOS
	if _, ok := systemPrefixes[goos]; !ok {
		goos = "linux"
	}
	check := abs
	sep := "/"
	if goos == "windows" {
		check = strings.ToLower(abs)
		sep = `\`
	}
	for _, p := range systemPrefixes[goos] {
		if check == p.prefix || strings.HasPrefix(check, p.prefix+sep) {
			return p.reason
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, s := range []struct{ rel, reason string }{
		{".ssh", "SSH keys"},
		{".gnupg", "GPG keys"},
		{".aws", "AWS credentials"},
		{".kube", "Kubernetes credentials"},
		{filepath.Join(".skiff", "data"), "the session database"},
	} {
		p := filepath.Join(home, s.rel)
		if abs == p || strings.HasPrefix(abs, p+string(filepath.Separator)) {
			return s.reason
		}
	}
	return ""
}
