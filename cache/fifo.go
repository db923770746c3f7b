// Package cache provides the bounded content cache index.
//
// The cache stores presence markers only; artifact bytes live in an
// artifact store addressed by the same key. Eviction is FIFO by insertion
// order: reads never refresh an entry, and evicting an entry never deletes
// the artifact behind it.
package cache

import (
	"container/list"
	"sync"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 100

// FIFO is a capacity-bounded map that evicts the oldest-inserted entry.
// Safe for concurrent use.
type FIFO[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = oldest
	entries  map[K]*list.Element
}

type fifoEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewFIFO creates a FIFO holding at most capacity entries.
func NewFIFO[K comparable, V any](capacity int) *FIFO[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO[K, V]{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[K]*list.Element, capacity),
	}
}

// Has reports whether key is present.
func (c *FIFO[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Get returns the value for key. It does not affect eviction order.
func (c *FIFO[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		return el.Value.(*fifoEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Set stores value under key.
//
// A new key is appended as the newest entry; if the cache is full the
// oldest entry is evicted first and returned with ok=true. Setting an
// existing key replaces its value in place: its insertion position is kept
// and nothing is evicted, so concurrent identical writes are idempotent.
func (c *FIFO[K, V]) Set(key K, value V) (evicted K, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.entries[key]; exists {
		el.Value.(*fifoEntry[K, V]).value = value
		return evicted, false
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		entry := oldest.Value.(*fifoEntry[K, V])
		c.order.Remove(oldest)
		delete(c.entries, entry.key)
		evicted, ok = entry.key, true
	}

	c.entries[key] = c.order.PushBack(&fifoEntry[K, V]{key: key, value: value})
	return evicted, ok
}

// Delete removes key. Returns false if it was absent.
func (c *FIFO[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return true
}

// Len returns the number of entries.
func (c *FIFO[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured maximum size.
func (c *FIFO[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns the keys in insertion order, oldest first.
func (c *FIFO[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*fifoEntry[K, V]).key)
	}
	return keys
}
