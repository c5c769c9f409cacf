package ai

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/neboloop/skiff/internal/agent/config"
	"github.com/neboloop/skiff/internal/logging"
)

// ErrNoEmbeddingProvider is returned by Chain.Embed when nothing can embed
var ErrNoEmbeddingProvider = errors.New("no embedding provider configured")

// Named pairs a provider with its config key
type Named struct {
	Name     string
	Provider Provider
}

// Cooldown records why and until when a provider is skipped
type Cooldown struct {
	Until  time.Time
	Reason ErrorKind
}

// Chain is an ordered set of providers with per-provider cooldowns.
// Cooldown state is in memory only; a new Chain starts clean.
type Chain struct {
	providers []Named
	policy    config.FallbackConfig
	embedder  Provider

	mu        sync.Mutex
	cooldowns map[string]Cooldown
	active    string

	// repeated failures are logged at debug level
	failures *DedupeCache

	// now is swapped in tests
	now func() time.Time
}

// NewChain creates a chain over providers in the given order
func NewChain(providers []Named, policy config.FallbackConfig) *Chain {
	return &Chain{
		providers: providers,
		policy:    policy,
		cooldowns: make(map[string]Cooldown),
		failures:  NewDedupeCache(5*time.Minute, 64),
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (c *Chain) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// SetEmbeddingProvider sets a dedicated embeddings backend
func (c *Chain) SetEmbeddingProvider(p Provider) {
	c.embedder = p
}

// SetEmbeddingModel forwards an embeddings model override to providers that accept one
func (c *Chain) SetEmbeddingModel(model string) {
	type embeddingModeler interface{ SetEmbeddingModel(string) }
	if m, ok := c.embedder.(embeddingModeler); ok {
		m.SetEmbeddingModel(model)
	}
	for _, n := range c.providers {
		if m, ok := n.Provider.(embeddingModeler); ok {
			m.SetEmbeddingModel(model)
		}
	}
}

// ProviderCount returns the number of chat providers
func (c *Chain) ProviderCount() int {
	return len(c.providers)
}

// ProviderNames returns chat provider names in order
func (c *Chain) ProviderNames() []string {
	names := make([]string, len(c.providers))
	for i, n := range c.providers {
		names[i] = n.Name
	}
	return names
}

// ActiveProviderName is the provider that served the last successful call,
// or the first provider before any call
func (c *Chain) ActiveProviderName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != "" {
		return c.active
	}
	if len(c.providers) > 0 {
		return c.providers[0].Name
	}
	return ""
}

// FallbackEnabled reports whether failures move on to the next provider
func (c *Chain) FallbackEnabled() bool {
	return c.policy.Enabled && len(c.providers) > 1
}

// Cooldowns returns the cooldowns that have not yet expired
func (c *Chain) Cooldowns() map[string]Cooldown {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make(map[string]Cooldown, len(c.cooldowns))
	for name, cd := range c.cooldowns {
		if now.Before(cd.Until) {
			out[name] = cd
		}
	}
	return out
}

// InCooldown reports whether name is currently skipped
func (c *Chain) InCooldown(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cd, ok := c.cooldowns[name]
	return ok && c.now().Before(cd.Until)
}

func (c *Chain) markFailed(name string, kind ErrorKind) time.Duration {
	d := c.policy.Cooldown(kind.String())
	c.mu.Lock()
	c.cooldowns[name] = Cooldown{Until: c.now().Add(d), Reason: kind}
	c.mu.Unlock()
	return d
}

func (c *Chain) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Chain) setActive(name string) {
	c.mu.Lock()
	c.active = name
	c.mu.Unlock()
}

// call runs fn against each eligible provider in order
func (c *Chain) call(ctx context.Context, req *ChatRequest, fn func(Provider, *ChatRequest) (*ChatResponse, error)) (*ChatResponse, error) {
	var lastErr error

	for _, n := range c.providers {
		if c.InCooldown(n.Name) {
			logging.Debugf("[Chain] skipping %s (cooldown)", n.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		adapted := *req
		adapted.Tools = AdaptTools(n.Provider.Flavor(), req.Tools)

		resp, err := fn(n.Provider, &adapted)
		if err == nil {
			c.setActive(n.Name)
			return resp, nil
		}

		if !c.FallbackEnabled() {
			return nil, err
		}

		kind := ClassifyErrorReason(err)
		d := c.markFailed(n.Name, kind)
		lastErr = err
		if c.failures.CheckAt(ErrorFingerprint(n.Name, kind, err), c.clock()) {
			logging.Debugf("[Chain] %s failed again (%s), cooling down %s", n.Name, kind, d)
		} else {
			logging.Warnf("[Chain] %s failed (%s), cooling down %s: %v", n.Name, kind, d, err)
		}
	}

	// only failed calls count as observed errors; skips never overwrite one
	switch {
	case lastErr != nil:
		return nil, &ExhaustedError{LastError: lastErr.Error(), Err: lastErr}
	case len(c.providers) == 0:
		return nil, &ExhaustedError{LastError: "no providers configured"}
	default:
		return nil, &ExhaustedError{LastError: "all providers in cooldown"}
	}
}

// Chat sends a request through the chain
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return c.call(ctx, req, func(p Provider, r *ChatRequest) (*ChatResponse, error) {
		return p.Chat(ctx, r)
	})
}

// ChatStream streams through the chain, calling onToken for each text delta.
// A provider that fails mid-stream is treated like any other failure.
func (c *Chain) ChatStream(ctx context.Context, req *ChatRequest, onToken func(string)) (*ChatResponse, error) {
	return c.call(ctx, req, func(p Provider, r *ChatRequest) (*ChatResponse, error) {
		events, err := p.Stream(ctx, r)
		if err != nil {
			return nil, err
		}
		return Collect(events, onToken)
	})
}

// Embed uses the dedicated embedding provider, else the first chat provider
func (c *Chain) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p := c.embedder
	if p == nil && len(c.providers) > 0 {
		p = c.providers[0].Provider
	}
	if p == nil {
		return nil, ErrNoEmbeddingProvider
	}
	return p.Embed(ctx, texts)
}

// CooldownNames returns providers in cooldown, sorted
func (c *Chain) CooldownNames() []string {
	cds := c.Cooldowns()
	names := make([]string, 0, len(cds))
	for name := range cds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
