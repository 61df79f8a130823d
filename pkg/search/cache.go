package search

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

// CachedSearcher memoizes search results per (session, normalized query,
// scope) for a rolling window. Downstream consumers fired for the same chunk
// share one external call instead of each re-issuing it.
type CachedSearcher struct {
	inner  Searcher
	cache  *gocache.Cache
	logger logging.Logger
}

// NewCachedSearcher wraps inner with TTL memoization.
func NewCachedSearcher(inner Searcher, ttl time.Duration, logger logging.Logger) *CachedSearcher {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSearcher{
		inner:  inner,
		cache:  gocache.New(ttl, 2*ttl),
		logger: logger.With(logging.F("component", "search_cache")),
	}
}

// Search returns the cached result when the same query was issued within
// the TTL window, otherwise delegates to the wrapped searcher. Errors are
// never cached.
func (c *CachedSearcher) Search(ctx context.Context, q Query) ([]Match, error) {
	key := cacheKey(q)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("search cache hit", logging.F("session_id", q.SessionID))
		return cached.([]Match), nil
	}

	matches, err := c.inner.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, matches, gocache.DefaultExpiration)
	return matches, nil
}

// CleanupSession drops all cached entries for a session.
func (c *CachedSearcher) CleanupSession(sessionID string) {
	prefix := sessionID + "|"
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}

// Verify interface compliance.
var _ Searcher = (*CachedSearcher)(nil)
