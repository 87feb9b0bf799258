// Package dedupe drops webhook deliveries the channel provider retries.
// WhatsApp redelivers a message until it receives a 200, so the same
// message id can arrive more than once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper reports whether a key was already seen, marking it if not.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Close() error
}

// cacheEntry stores the timestamp and list element for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Memory is a thread-safe, TTL-based, size-limited set of seen keys for a
// single process. A linked list keeps insertion order so the oldest key is
// evicted in O(1) once the cache is full.
type Memory struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewMemory creates an in-process deduper. A background goroutine removes
// expired keys every minute until Close.
func NewMemory(ttl time.Duration, maxSize int) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	m := &Memory{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Seen atomically checks the key and marks it when it is new or expired.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, ok := m.seen[key]; ok {
		if now.Sub(entry.timestamp) < m.ttl {
			return true, nil
		}
		entry.timestamp = now
		m.order.MoveToBack(entry.element)
		return false, nil
	}

	if len(m.seen) >= m.maxSize {
		m.evictOldest()
	}
	m.seen[key] = &cacheEntry{
		timestamp: now,
		element:   m.order.PushBack(key),
	}
	return false, nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// evictOldest must be called with mu held.
func (m *Memory) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	m.order.Remove(front)
	delete(m.seen, key)
}

func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.seen {
		if now.Sub(entry.timestamp) >= m.ttl {
			m.order.Remove(entry.element)
			delete(m.seen, key)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call multiple times.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
	return nil
}
