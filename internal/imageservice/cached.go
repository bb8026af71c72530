package imageservice

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes successful renders by fingerprint and size. Failures are
// never cached, so a retry after an error reaches the backend.
type Cached struct {
	next  Service
	cache *lru.Cache[string, string]
}

// NewCached wraps next with an LRU of size entries.
func NewCached(next Service, size int) (*Cached, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Render(ctx context.Context, req Request) (string, error) {
	key := fmt.Sprintf("%s/%dx%d", req.Fingerprint(), req.Width, req.Height)
	if ref, ok := c.cache.Get(key); ok {
		return ref, nil
	}

	ref, err := c.next.Render(ctx, req)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, ref)
	return ref, nil
}

// Len returns the number of cached references.
func (c *Cached) Len() int {
	return c.cache.Len()
}
