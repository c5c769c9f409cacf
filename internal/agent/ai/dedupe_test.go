package ai

import (
	"errors"
	"testing"
	"time"
)

func TestDedupeCache(t *testing.T) {
	cache := NewDedupeCache(time.Second, 3)
	base := time.Unix(1000, 0)

	if cache.CheckAt("key1", base) {
		t.Error("first check should return false")
	}
	if !cache.CheckAt("key1", base.Add(500*time.Millisecond)) {
		t.Error("second check within TTL should return true")
	}
	if cache.CheckAt("key1", base.Add(3*time.Second)) {
		t.Error("check after TTL should return false")
	}
	if cache.CheckAt("", base) {
		t.Error("empty key should return false")
	}
}

func TestDedupeCacheMaxSize(t *testing.T) {
	cache := NewDedupeCache(time.Hour, 2)
	base := time.Unix(1000, 0)

	cache.CheckAt("key1", base)
	cache.CheckAt("key2", base.Add(time.Second))
	cache.CheckAt("key3", base.Add(2*time.Second))

	if cache.Size() != 2 {
		t.Errorf("cache size should be 2, got %d", cache.Size())
	}
	if cache.CheckAt("key1", base.Add(3*time.Second)) {
		t.Error("key1 should have been evicted")
	}
}

func TestErrorFingerprint(t *testing.T) {
	a := ErrorFingerprint("openai", ErrorRateLimit, errors.New("429: rate limit, request_id=req_abc123 retry in 20s"))
	b := ErrorFingerprint("openai", ErrorRateLimit, errors.New("429: rate limit, request_id=req_zzz999 retry in 7s"))
	if a == "" || a != b {
		t.Errorf("expected equal fingerprints, got %q and %q", a, b)
	}

	if ErrorFingerprint("anthropic", ErrorRateLimit, errors.New("429: rate limit")) == ErrorFingerprint("openai", ErrorRateLimit, errors.New("429: rate limit")) {
		t.Error("provider should be part of the fingerprint")
	}
	if ErrorFingerprint("openai", ErrorUnknown, nil) != "" {
		t.Error("nil error has no fingerprint")
	}
}
