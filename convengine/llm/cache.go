package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bloomline-ai/promoflow/convengine/observability"
)

// Cached wraps a generator with a content-addressed response cache.
// The key is derived from the prompt content only, never from session
// identity, so identical classification prompts across sessions share one
// model call while per-session dialogue never collides.
type Cached struct {
	inner      Generator
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   string
	expires time.Time
}

// NewCached wraps g with a cache of at most maxEntries responses, each valid
// for ttl.
func NewCached(g Generator, maxEntries int, ttl time.Duration) *Cached {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{
		inner:      g,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
	}
}

// Generate implements Generator.
func (c *Cached) Generate(ctx context.Context, systemPrompt, userContext string) (string, error) {
	key := cacheKey(systemPrompt, userContext)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		observability.RecordLLMCall("cache", "content", "cached", 0)
		return e.value, nil
	}
	c.mu.Unlock()

	out, err := c.inner.Generate(ctx, systemPrompt, userContext)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked()
		// Still full after sweeping: drop an arbitrary entry rather than grow.
		if len(c.entries) >= c.maxEntries {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}
	c.entries[key] = cacheEntry{value: out, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return out, nil
}

// Len reports the number of cached entries, expired ones included.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cached) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

func cacheKey(systemPrompt, userContext string) string {
	h := sha256.New()
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userContext))
	return hex.EncodeToString(h.Sum(nil))
}
