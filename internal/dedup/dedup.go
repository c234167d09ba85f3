// Package dedup remembers which pages were recently checked by the
// auto-detection gate so repeated load and activation events for the same
// URL do not trigger repeated identification calls. It never blocks a
// manual correction.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultWindow is how long a checked page stays suppressed.
const DefaultWindow = 30 * time.Second

// Cache is the gate's view of the dedup store.
type Cache interface {
	IsRecentlyChecked(ctx context.Context, key string) bool
	MarkChecked(ctx context.Context, key string)
}

// Memory is an in-process Cache. Expired entries are evicted lazily on every
// access, so the map stays bounded without a background sweep.
type Memory struct {
	clock  clock.Clock
	window time.Duration

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemory returns a Memory cache. A nil clock uses wall time; a
// non-positive window uses DefaultWindow.
func NewMemory(c clock.Clock, window time.Duration) *Memory {
	if c == nil {
		c = clock.New()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{clock: c, window: window, entries: make(map[string]time.Time)}
}

// IsRecentlyChecked is true iff key was marked strictly less than the window ago.
func (m *Memory) IsRecentlyChecked(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.evictLocked(now)
	at, ok := m.entries[key]
	return ok && now.Sub(at) < m.window
}

func (m *Memory) MarkChecked(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.evictLocked(now)
	m.entries[key] = now
}

// Len reports the number of live entries without evicting.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) evictLocked(now time.Time) {
	for k, at := range m.entries {
		if now.Sub(at) >= m.window {
			delete(m.entries, k)
		}
	}
}
