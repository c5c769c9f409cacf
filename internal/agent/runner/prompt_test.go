package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPromptBuilderOrder(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "TOOLS.md", "tools")
	writeFile(t, ws, "SOUL.md", "soul")
	writeFile(t, ws, "MEMORY.md", "memory")
	writeFile(t, ws, "memory/2026-03-04.md", "today notes")

	b := NewPromptBuilder(ws, time.Minute)
	b.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local) }

	got := b.Build()
	want := "--- SOUL.md ---\nsoul\n\n" +
		"--- TOOLS.md ---\ntools\n\n" +
		"--- MEMORY.md ---\nmemory\n\n" +
		"--- Memory: 2026-03-04 ---\ntoday notes\n\n"
	if got != want {
		t.Errorf("Build =\n%q\nwant\n%q", got, want)
	}
}

func TestPromptBuilderBootstrap(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "BOOTSTRAP.md", "hello world")
	writeFile(t, ws, "SOUL.md", "soul")

	got := NewPromptBuilder(ws, 0).Build()
	if !strings.HasPrefix(got, bootstrapPreamble+"--- BOOTSTRAP.md ---\nhello world\n\n--- SOUL.md ---") {
		t.Errorf("unexpected bootstrap prompt: %q", got)
	}
}

func TestPromptBuilderCaps(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "SOUL.md", strings.Repeat("s", 25000))

	got := NewPromptBuilder(ws, 0).Build()
	if !strings.Contains(got, strings.Repeat("s", MaxPromptFileChars)+"\n...[truncated at 20000 chars]\n") {
		t.Error("per-file cap not applied")
	}
	if strings.Contains(got, strings.Repeat("s", MaxPromptFileChars+1)) {
		t.Error("file content past the cap leaked")
	}

	// eight files of 19990 chars exceed the total cap; the last one is cut short
	ws = t.TempDir()
	for _, name := range append([]string{"BOOTSTRAP.md"}, promptFiles...) {
		writeFile(t, ws, name, strings.Repeat("x", 19990))
	}
	writeFile(t, ws, "memory/"+time.Now().Format("2006-01-02")+".md", strings.Repeat("m", 19990))
	got = NewPromptBuilder(ws, 0).Build()
	memory := got[strings.Index(got, "--- Memory: "):]
	if !strings.HasSuffix(memory, "\n...[context limit reached]\n\n\n") {
		t.Error("total cap not applied")
	}
	// the label "Memory" holds one lowercase m
	if n := strings.Count(memory, "m") - 1; n != MaxPromptChars-7*19990 {
		t.Errorf("memory injected %d chars", n)
	}
}

func TestPromptBuilderCacheAndInvalidate(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "USER.md", "v1")

	now := time.Now()
	b := NewPromptBuilder(ws, time.Minute)
	b.now = func() time.Time { return now }

	if !strings.Contains(b.Build(), "v1") {
		t.Fatal("expected v1")
	}
	writeFile(t, ws, "USER.md", "v2")
	if !strings.Contains(b.Build(), "v1") {
		t.Error("cached prompt should be reused within the TTL")
	}

	now = now.Add(2 * time.Minute)
	if !strings.Contains(b.Build(), "v2") {
		t.Error("prompt should be rebuilt after the TTL")
	}

	writeFile(t, ws, "USER.md", "v3")
	b.Invalidate()
	if !strings.Contains(b.Build(), "v3") {
		t.Error("Invalidate should force a rebuild")
	}
}

func TestPromptBuilderTeamAndFiles(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "AGENTS.md", strings.Repeat("a", MaxPromptFileChars+5))

	b := NewPromptBuilder(ws, time.Hour)
	b.SetTeam(TeamContext{Team: "core", Member: "alice", Lead: "lead"})
	if !strings.Contains(b.Build(), "--- Team Context ---\nYou are 'alice' in team 'core'.\nTeam lead: lead\nYou are a TEAMMATE.") {
		t.Error("team context missing")
	}

	files := b.Files()
	if len(files) != 1 || files[0].Name != "AGENTS.md" || !files[0].Truncated || files[0].Injected != MaxPromptFileChars {
		t.Errorf("unexpected file report: %+v", files)
	}
}

func TestPromptWatcherInvalidates(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "SOUL.md", "before")

	b := NewPromptBuilder(ws, time.Hour)
	if !strings.Contains(b.Build(), "before") {
		t.Fatal("expected initial content")
	}

	w, err := WatchPrompt(context.Background(), b)
	if err != nil {
		t.Fatalf("WatchPrompt failed: %v", err)
	}
	defer w.Close()

	writeFile(t, ws, "SOUL.md", "after")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.Build(), "after") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("prompt was not invalidated after the file changed")
}
