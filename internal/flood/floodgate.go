// Package flood paces outbound requests with a per-key sliding window.
package flood

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultWindow is the sliding window used by New.
	DefaultWindow = 60 * time.Second
	// cleanupInterval is how often idle keys are dropped
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a key may go unused before it is dropped
	idleTimeout = 10 * time.Minute
)

// Gate caps requests per key within a sliding window. Wait blocks until a slot frees.
type Gate struct {
	limit       int // Requests per key per window; <= 0 disables the cap
	window      time.Duration
	entries     map[string]*keyEntry
	mutex       sync.RWMutex
	stopCleanup chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// keyEntry tracks request timestamps for one key
type keyEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// New creates a Gate allowing limitPerMinute requests per key per minute.
func New(limitPerMinute int) *Gate {
	return NewWithWindow(limitPerMinute, DefaultWindow)
}

// NewWithWindow creates a Gate with a custom window length.
func NewWithWindow(limit int, window time.Duration) *Gate {
	g := &Gate{
		limit:       limit,
		window:      window,
		entries:     make(map[string]*keyEntry),
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}

	go g.cleanup()

	return g
}

// Stop stops the background cleanup goroutine. Safe to call more than once.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() { close(g.stopCleanup) })
}

// Allow records a request for key and reports whether it fits in the window.
// A rejected request is not recorded.
func (g *Gate) Allow(key string) bool {
	_, ok := g.reserve(key)
	return ok
}

// Wait blocks until a request for key fits in the window, then records it.
func (g *Gate) Wait(ctx context.Context, key string) error {
	for {
		delay, ok := g.reserve(key)
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a request if the window has room, otherwise returns how long until it will.
func (g *Gate) reserve(key string) (time.Duration, bool) {
	if g.limit <= 0 {
		return 0, true
	}

	now := g.now()

	g.mutex.Lock()
	defer g.mutex.Unlock()

	entry, exists := g.entries[key]
	if !exists {
		entry = &keyEntry{
			timestamps: make([]time.Time, 0, g.limit+1),
		}
		g.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-g.window)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= g.limit {
		delay := entry.timestamps[0].Add(g.window).Sub(now)
		if delay <= 0 {
			delay = time.Millisecond
		}
		return delay, false
	}

	entry.timestamps = append(entry.timestamps, now)
	return 0, true
}

func (g *Gate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.performCleanup()
		case <-g.stopCleanup:
			return
		}
	}
}

// performCleanup drops keys idle for longer than idleTimeout
func (g *Gate) performCleanup() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	cutoff := g.now().Add(-idleTimeout)
	for key, entry := range g.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(g.entries, key)
		}
	}
}
