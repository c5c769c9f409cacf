package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// DedupeCache remembers keys for a TTL so repeated events can be suppressed
type DedupeCache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
}

// NewDedupeCache creates a cache. ttl <= 0 keeps keys until evicted by size.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if maxSize < 0 {
		maxSize = 0
	}
	return &DedupeCache{seen: make(map[string]time.Time), ttl: ttl, maxSize: maxSize}
}

// CheckAt reports whether key was seen within the TTL before now, and touches it
func (c *DedupeCache) CheckAt(key string, now time.Time) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, found := c.seen[key]
	c.seen[key] = now
	if found && (c.ttl <= 0 || now.Sub(last) < c.ttl) {
		return true
	}
	c.prune(now)
	return false
}

// prune drops expired keys, then the oldest ones beyond maxSize
func (c *DedupeCache) prune(now time.Time) {
	if c.ttl > 0 {
		for k, t := range c.seen {
			if now.Sub(t) >= c.ttl {
				delete(c.seen, k)
			}
		}
	}
	if c.maxSize == 0 || len(c.seen) <= c.maxSize {
		return
	}

	keys := make([]string, 0, len(c.seen))
	for k := range c.seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return c.seen[keys[i]].Before(c.seen[keys[j]]) })
	for _, k := range keys[:len(c.seen)-c.maxSize] {
		delete(c.seen, k)
	}
}

// Size returns the number of remembered keys
func (c *DedupeCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// volatile matches request ids, hex digests, and numbers that differ between otherwise identical errors
var volatile = regexp.MustCompile(`(?i)(req(uest)?[_-]?id[":=\s]+\S+|[0-9a-f]{16,}|\d+)`)

// ErrorFingerprint identifies an error by provider, kind, and normalized text
func ErrorFingerprint(provider string, kind ErrorKind, err error) string {
	if err == nil {
		return ""
	}
	text := volatile.ReplaceAllString(strings.ToLower(err.Error()), "#")
	sum := sha256.Sum256([]byte(provider + "|" + kind.String() + "|" + text))
	return hex.EncodeToString(sum[:8])
}
