// Package kv provides the string-keyed persistence substrate used by the shuffle stores.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// IsNotFound reports whether err means the key has no value.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is a string-keyed blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// ListKeys returns every key starting with prefix, in ascending order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// MemoryPath selects the in-process store in Open.
const MemoryPath = ":memory:"

// Open returns the store for path, wrapped in a read-through cache when cacheSize > 0.
func Open(path string, cacheSize int) (Store, error) {
	var (
		backing Store
		err     error
	)

	if path == "" || path == MemoryPath {
		backing = NewMemoryStore()
	} else {
		backing, err = OpenSQLite(path)
		if err != nil {
			return nil, err
		}
	}

	if cacheSize <= 0 {
		return backing, nil
	}

	cached, err := NewCachedStore(backing, cacheSize)
	if err != nil {
		_ = backing.Close()
		return nil, err
	}
	return cached, nil
}
