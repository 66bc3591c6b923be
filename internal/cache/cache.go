// Package cache holds the key-value cache contract the session store and the
// import lock are built on, plus an in-memory and a NATS JetStream backend.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a TTL key-value store. Get reports ok=false for missing and
// expired keys alike.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Remove(ctx context.Context, key string) error
}

// Clock returns the current time. Tests swap it for a ManualClock.
type Clock func() time.Time

type memoryItem struct {
	value   []byte
	expires time.Time
}

// purgeEvery is how many writes pass between sweeps of expired entries.
const purgeEvery = 256

// Memory is a process-local Cache. Expired entries are dropped lazily on read
// and in bulk every purgeEvery writes.
type Memory struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	now    Clock
	writes int
}

// NewMemory returns an empty cache reading time from now, or time.Now if nil.
func NewMemory(now Clock) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{items: make(map[string]memoryItem), now: now}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = memoryItem{
		value:   append([]byte(nil), value...),
		expires: m.now().Add(ttl),
	}

	m.writes++
	if m.writes%purgeEvery == 0 {
		m.purgeLocked()
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(item.expires) {
		delete(m.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Len counts live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	return len(m.items)
}

func (m *Memory) purgeLocked() {
	now := m.now()
	for k, item := range m.items {
		if !now.Before(item.expires) {
			delete(m.items, k)
		}
	}
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
