package dnsx

import (
	"context"
	"sync"
	"time"

	"github.com/bl4ckh4nd/MailBeacon/types"
)

// Cache is a thread-safe memo of mail server resolutions with a fixed TTL.
// Concurrent resolutions for the same domain are deduplicated: only one
// upstream query runs, and every waiter receives its result. Errors are
// cached for the same TTL so a dead domain is not re-queried for each of
// its candidates.
type Cache struct {
	mu            sync.Mutex
	entries       map[string]*entry
	cacheTTL      time.Duration
	lookupTimeout time.Duration
	// upstream is injectable for testing
	upstream interface {
		ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error)
	}
}

type entry struct {
	server  types.MailServer
	err     error
	expires time.Time
	done    chan struct{} // closed when resolution is complete
}

// NewCache wraps a Resolver with the given lookup timeout and cache TTL.
func NewCache(lookupTimeout, cacheTTL time.Duration, r *Resolver) *Cache {
	return NewCacheWithResolver(lookupTimeout, cacheTTL, r)
}

// NewCacheWithResolver creates a cache over a custom upstream (for testing).
func NewCacheWithResolver(lookupTimeout, cacheTTL time.Duration, r interface {
	ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error)
}) *Cache {
	return &Cache{
		entries:       make(map[string]*entry),
		cacheTTL:      cacheTTL,
		lookupTimeout: lookupTimeout,
		upstream:      r,
	}
}

// ResolveMailServer returns the mail server for domain, using the cache when
// possible. The upstream query runs detached from the caller's context so a
// cancelled caller cannot poison the cache for everyone else; every caller,
// including the one that triggered the query, still honors ctx while waiting.
func (c *Cache) ResolveMailServer(ctx context.Context, domain string) (types.MailServer, error) {
	c.mu.Lock()

	if e, ok := c.entries[domain]; ok {
		select {
		case <-e.done:
			// Completed entry - check if still valid
			if time.Now().Before(e.expires) {
				c.mu.Unlock()
				return e.server, e.err
			}
			// Expired, fall through to refresh
		default:
			// Resolution in progress - wait for it
			c.mu.Unlock()
			return c.await(ctx, e)
		}
	}

	// Start new resolution
	e := &entry{done: make(chan struct{})}
	c.entries[domain] = e
	c.mu.Unlock()

	go func() {
		lctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
		defer cancel()

		e.server, e.err = c.upstream.ResolveMailServer(lctx, domain)
		e.expires = time.Now().Add(c.cacheTTL)
		close(e.done)
	}()

	return c.await(ctx, e)
}

// await blocks until the entry's resolution completes or ctx is done.
func (c *Cache) await(ctx context.Context, e *entry) (types.MailServer, error) {
	select {
	case <-e.done:
		return e.server, e.err
	case <-ctx.Done():
		return types.MailServer{}, ctx.Err()
	}
}

// Len returns the number of entries in the cache (for diagnostics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
