package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/neboloop/skiff/internal/logging"
)

const (
	// MaxPromptFileChars caps a single workspace file in the system prompt
	MaxPromptFileChars = 20000
	// MaxPromptChars caps all injected workspace files together
	MaxPromptChars = 150000

	// DefaultPromptTTL is how long a built prompt is reused
	DefaultPromptTTL = 60 * time.Second

	bootstrapFile = "BOOTSTRAP.md"
	memoryDir     = "memory"
)

const bootstrapPreamble = "You are a brand new AI agent, just coming online for the first time.\n" +
	"You have tools available to read and write files in your workspace.\n\n"

// promptFiles are injected in this order after BOOTSTRAP.md
var promptFiles = []string{"SOUL.md", "IDENTITY.md", "USER.md", "AGENTS.md", "TOOLS.md", "MEMORY.md"}

// TeamContext describes the agent's place in a team
type TeamContext struct {
	Team   string
	Member string
	Lead   string
}

func (t TeamContext) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are '%s' in team '%s'.\nTeam lead: %s\n", t.Member, t.Team, t.Lead)
	if t.Member == t.Lead {
		sb.WriteString("You are the TEAM LEAD. Coordinate work and review what teammates report back.\n")
	} else {
		sb.WriteString("You are a TEAMMATE. Complete your assigned work and report results.\n")
	}
	return sb.String()
}

// PromptFile reports how one workspace file contributes to the prompt
type PromptFile struct {
	Name      string
	RawChars  int
	Injected  int
	Truncated bool
}

// PromptBuilder assembles the system prompt from workspace markdown files
type PromptBuilder struct {
	workspace string
	ttl       time.Duration
	now       func() time.Time

	mu      sync.Mutex
	team    *TeamContext
	cached  string
	builtAt time.Time
}

// NewPromptBuilder creates a builder for workspace. ttl <= 0 uses DefaultPromptTTL.
func NewPromptBuilder(workspace string, ttl time.Duration) *PromptBuilder {
	if ttl <= 0 {
		ttl = DefaultPromptTTL
	}
	return &PromptBuilder{workspace: workspace, ttl: ttl, now: time.Now}
}

// Workspace returns the directory prompts are read from
func (b *PromptBuilder) Workspace() string {
	return b.workspace
}

// SetTeam adds a team section to the prompt
func (b *PromptBuilder) SetTeam(tc TeamContext) {
	b.mu.Lock()
	b.team = &tc
	b.cached = ""
	b.mu.Unlock()
}

// Invalidate drops the cached prompt so the next Build rereads the workspace
func (b *PromptBuilder) Invalidate() {
	b.mu.Lock()
	b.cached = ""
	b.mu.Unlock()
}

// Build returns the cached prompt, rebuilding it once the TTL has passed
func (b *PromptBuilder) Build() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.cached != "" && now.Sub(b.builtAt) < b.ttl {
		return b.cached
	}
	b.cached = b.build(now)
	b.builtAt = now
	return b.cached
}

func (b *PromptBuilder) build(now time.Time) string {
	var sb strings.Builder
	total := 0

	inject := func(label, content string) {
		if content == "" {
			return
		}
		text := content
		if len(text) > MaxPromptFileChars {
			text = text[:runeStart(text, MaxPromptFileChars)] + fmt.Sprintf("\n...[truncated at %d chars]\n", MaxPromptFileChars)
		}
		if total+len(text) > MaxPromptChars {
			remaining := MaxPromptChars - total
			if remaining <= 100 {
				return
			}
			text = text[:runeStart(text, remaining)] + "\n...[context limit reached]\n"
		}
		sb.WriteString("--- " + label + " ---\n" + text + "\n\n")
		total += len(text)
	}

	if bootstrap := b.read(bootstrapFile); bootstrap != "" {
		sb.WriteString(bootstrapPreamble)
		inject(bootstrapFile, bootstrap)
	}
	for _, name := range promptFiles {
		inject(name, b.read(name))
	}
	today := now.Format("2006-01-02")
	inject("Memory: "+today, b.read(filepath.Join(memoryDir, today+".md")))

	if b.team != nil {
		inject("Team Context", b.team.render())
	}
	return sb.String()
}

func (b *PromptBuilder) read(name string) string {
	if b.workspace == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(b.workspace, name))
	if err != nil {
		return ""
	}
	return string(data)
}

// Files reports the size of each identity file present in the workspace
func (b *PromptBuilder) Files() []PromptFile {
	var out []PromptFile
	for _, name := range promptFiles {
		content := b.read(name)
		if content == "" {
			continue
		}
		out = append(out, PromptFile{
			Name:      name,
			RawChars:  len(content),
			Injected:  min(len(content), MaxPromptFileChars),
			Truncated: len(content) > MaxPromptFileChars,
		})
	}
	return out
}

// PromptWatcher invalidates a PromptBuilder when workspace files change
type PromptWatcher struct {
	builder *PromptBuilder
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatchPrompt starts watching the builder's workspace and its memory directory
func WatchPrompt(ctx context.Context, b *PromptBuilder) (*PromptWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(b.workspace); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", b.workspace, err)
	}
	if err := watcher.Add(filepath.Join(b.workspace, memoryDir)); err != nil {
		// memory/ is created on demand
		logging.Debugf("[prompt] Could not watch memory dir: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &PromptWatcher{builder: b, watcher: watcher, cancel: cancel, done: make(chan struct{})}
	go w.loop(ctx)
	return w, nil
}

func (w *PromptWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
				continue
			}
			logging.Debugf("[prompt] %s changed (%s), invalidating", filepath.Base(event.Name), event.Op)
			w.builder.Invalidate()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Errorf("[prompt] Watch error: %v", err)
		}
	}
}

// Close stops the watcher
func (w *PromptWatcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}
