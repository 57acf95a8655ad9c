package stubs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"goa.design/grail/schema"
)

// sharedCache memoizes rendered stubs for the whole process. It is unbounded
// by default, preserving the observed behavior of the original system; use
// NewBoundedCache with WithCache for long-lived servers that need a ceiling.
var sharedCache = NewCache()

type (
	// Cache memoizes rendered stub text keyed by request fingerprint. It is
	// the only shared mutable state in the generator, guarded by a mutex so
	// concurrent callers observe a consistent get-or-compute-and-store.
	Cache struct {
		mu      sync.Mutex
		entries map[string]string
		bounded *lru.Cache[string, string]
		hits    uint64
		misses  uint64
	}

	// CacheStats reports cache effectiveness counters.
	CacheStats struct {
		// Hits counts lookups served without rendering.
		Hits uint64
		// Misses counts lookups that invoked the renderer.
		Misses uint64
	}
)

// NewCache returns an unbounded cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// NewBoundedCache returns a cache evicting least-recently-used entries beyond
// size. Size must be positive.
func NewBoundedCache(size int) (*Cache, error) {
	b, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("bounded stub cache: %w", err)
	}
	return &Cache{bounded: b}, nil
}

// Stats returns a snapshot of the hit/miss counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses}
}

func (c *Cache) getOrCompute(key string, compute func() string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		if text, ok := c.bounded.Get(key); ok {
			c.hits++
			return text
		}
		c.misses++
		text := compute()
		c.bounded.Add(key, text)
		return text
	}
	if text, ok := c.entries[key]; ok {
		c.hits++
		return text
	}
	c.misses++
	text := compute()
	c.entries[key] = text
	return text
}

// Fingerprint returns the structural cache key for the request: a digest of
// the input and output schema identities and every tool's name and signature
// text. Identities come from stable qualified names, never from runtime
// object representations, so structurally identical requests always map to
// the same key.
func (req Request) Fingerprint() string {
	var b strings.Builder
	b.WriteString(recordIdentity(req.Input))
	b.WriteByte(0)
	if req.Output != nil {
		b.WriteString(recordIdentity(req.Output))
	} else {
		b.WriteByte('-')
	}
	for _, sig := range req.Tools {
		b.WriteByte(1)
		b.WriteString(sig.Name)
		b.WriteByte(2)
		for _, p := range sig.Params {
			b.WriteString(p.Name)
			b.WriteByte('|')
			b.WriteString(p.Kind.String())
			b.WriteByte('|')
			b.WriteString(schema.Repr(p.Type))
			b.WriteByte('|')
			if p.HasDefault {
				b.WriteString(p.Default)
			}
			b.WriteByte(3)
		}
		b.WriteByte(4)
		b.WriteString(schema.Repr(sig.Return))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func recordIdentity(r *schema.Record) string {
	if r == nil {
		return ""
	}
	if r.Path != "" {
		return r.Path
	}
	return r.Name
}
