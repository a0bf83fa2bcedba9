package dispatch

import (
	"context"
	"sync"
)

// Source reports how a dispatch result was obtained.
type Source int

const (
	// SourceExecuted means this call ran the tool.
	SourceExecuted Source = iota
	// SourceCache means a completed entry was reused without contacting
	// the server.
	SourceCache
	// SourceCoalesced means this call awaited an in-flight execution of
	// the same fingerprint and reused its outcome.
	SourceCoalesced
)

// String returns the source name for logs.
func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceCoalesced:
		return "coalesced"
	default:
		return "executed"
	}
}

type cacheEntry struct {
	// done closes once res is assigned. res is written exactly once,
	// before close, and only read after <-done.
	done chan struct{}
	res  *Result
}

// Cache stores dispatch outcomes keyed by invocation fingerprint for the
// lifetime of one conversation. There is no TTL or eviction. Entries are
// single-writer: the first dispatch for a fingerprint claims the entry
// and executes; concurrent dispatches for the same fingerprint await its
// completion instead of re-invoking the tool.
//
// A Cache is owned by the session that created it and must never be
// shared across conversations.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewCache creates an empty invocation cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
	}
}

// Do returns the result for the fingerprint, running fn at most once per
// fingerprint for the cache's lifetime. A completed entry is returned
// immediately with SourceCache. An in-flight entry is awaited and
// returned with SourceCoalesced. Otherwise fn runs on the calling
// goroutine and its result is published with SourceExecuted.
//
// The only error is ctx expiring while awaiting an in-flight execution;
// the execution itself keeps running and its outcome stays cached.
func (c *Cache) Do(ctx context.Context, fingerprint string, fn func() *Result) (*Result, Source, error) {
	c.mu.Lock()
	if e, ok := c.entries[fingerprint]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
			return e.res, SourceCache, nil
		default:
		}
		select {
		case <-e.done:
			return e.res, SourceCoalesced, nil
		case <-ctx.Done():
			return nil, SourceCoalesced, ctx.Err()
		}
	}

	e := &cacheEntry{done: make(chan struct{})}
	c.entries[fingerprint] = e
	c.mu.Unlock()

	e.res = fn()
	close(e.done)
	return e.res, SourceExecuted, nil
}

// Get returns the completed result for the fingerprint, if any.
// An in-flight entry is not a hit.
func (c *Cache) Get(fingerprint string) (*Result, bool) {
	c.mu.Lock()
	e, ok := c.entries[fingerprint]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		return e.res, true
	default:
		return nil, false
	}
}

// Len returns the number of entries, in-flight included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
