package kv

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore is a read-through LRU cache in front of another Store.
// Only positive lookups are cached; every write goes to the backing store first.
type CachedStore struct {
	backing Store
	cache   *lru.Cache[string, []byte]
	// fillMutex serializes cache fills against writes so a slow read cannot reinsert a stale value.
	fillMutex sync.Mutex
}

func NewCachedStore(backing Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &CachedStore{backing: backing, cache: cache}, nil
}

func (c *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.cache.Get(key); ok {
		return append([]byte(nil), v...), nil
	}

	c.fillMutex.Lock()
	defer c.fillMutex.Unlock()

	if v, ok := c.cache.Get(key); ok {
		return append([]byte(nil), v...), nil
	}

	v, err := c.backing.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]byte(nil), v...))
	return v, nil
}

func (c *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	c.fillMutex.Lock()
	defer c.fillMutex.Unlock()

	if err := c.backing.Set(ctx, key, value); err != nil {
		c.cache.Remove(key)
		return err
	}
	c.cache.Add(key, append([]byte(nil), value...))
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, key string) error {
	c.fillMutex.Lock()
	defer c.fillMutex.Unlock()

	c.cache.Remove(key)
	return c.backing.Delete(ctx, key)
}

func (c *CachedStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return c.backing.ListKeys(ctx, prefix)
}

func (c *CachedStore) Close() error {
	c.cache.Purge()
	return c.backing.Close()
}
