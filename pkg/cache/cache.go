// Package cache provides the byte-oriented stores behind read-through caching.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a TTL key/value store. A miss is reported by ok == false, not by an
// error; errors mean the store itself failed.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Item represents a cached item with expiration
type Item struct {
	Value      []byte
	Expiration int64
}

// expiredAt reports whether the item had expired at now (unix nanoseconds).
func (item Item) expiredAt(now int64) bool {
	return item.Expiration > 0 && now > item.Expiration
}

// Memory is a thread-safe in-memory Store with expiration and a size bound.
type Memory struct {
	items    map[string]Item
	mu       sync.RWMutex
	maxItems int
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a memory store. A positive cleanupInterval starts a
// background sweep of expired items, stopped by Close.
func NewMemory(maxItems int, cleanupInterval time.Duration) *Memory {
	m := &Memory{
		items:    make(map[string]Item),
		maxItems: maxItems,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go m.startCleanupTimer(cleanupInterval)
	}

	return m
}

// Set adds an item with a specific time to live. Zero ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = m.now().Add(ttl).UnixNano()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists && m.maxItems > 0 && len(m.items) >= m.maxItems {
		m.evictOldest()
	}

	m.items[key] = Item{Value: append([]byte(nil), value...), Expiration: exp}
	return nil
}

// Get retrieves an item from the cache
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, found := m.items[key]
	if !found || item.expiredAt(m.now().UnixNano()) {
		return nil, false, nil
	}
	return item.Value, true, nil
}

// Delete removes an item from the cache
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Count returns the number of items in the cache (including expired items)
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) startCleanupTimer(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.deleteExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) deleteExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixNano()
	for k, v := range m.items {
		if v.expiredAt(now) {
			delete(m.items, k)
		}
	}
}

// evictOldest removes the item closest to expiring. Items without expiry go last.
func (m *Memory) evictOldest() {
	var oldestKey string
	var oldestExp int64
	found := false

	for k, v := range m.items {
		if !found || (v.Expiration != 0 && (oldestExp == 0 || v.Expiration < oldestExp)) {
			oldestKey, oldestExp, found = k, v.Expiration, true
		}
	}

	if found {
		delete(m.items, oldestKey)
	}
}
