package core

import (
	"context"
	"sync"
)

// keyLock is a registry of per-key mutexes. Entries are reference counted and
// removed once the last holder or waiter releases them.
type keyLock struct {
	mutex   sync.Mutex
	entries map[string]*keyLockEntry
}

type keyLockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[string]*keyLockEntry)}
}

// Lock blocks until key is free or ctx is done. The returned unlock func is safe to call more than once.
func (k *keyLock) Lock(ctx context.Context, key string) (func(), error) {
	entry := k.acquireEntry(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.releaseEntry(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			k.releaseEntry(key, entry)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (k *keyLock) Len() int {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	return len(k.entries)
}

func (k *keyLock) acquireEntry(key string) *keyLockEntry {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &keyLockEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *keyLock) releaseEntry(key string, entry *keyLockEntry) {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}
