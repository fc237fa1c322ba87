package store

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache tracks which working copies are on disk and decides when they go.
//
// Keys leave the cache by capacity, by TTL or by Forget. Removal callbacks
// run under the LRU's lock, so evicted keys are only queued here; the owner
// drains them with Evicted and deletes the directories itself.
type Cache struct {
	lru *expirable.LRU[Key, struct{}]

	mu      sync.Mutex
	evicted []Key
	notify  chan struct{}
}

// NewCache returns a cache of at most size copies, each kept for ttl after
// its last use. Zero disables the respective bound.
func NewCache(size int, ttl time.Duration) *Cache {
	c := &Cache{notify: make(chan struct{}, 1)}
	c.lru = expirable.NewLRU[Key, struct{}](size, c.onEvict, ttl)
	return c
}

func (c *Cache) onEvict(k Key, _ struct{}) {
	c.mu.Lock()
	c.evicted = append(c.evicted, k)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Touch records a use of k.
func (c *Cache) Touch(k Key) { c.lru.Add(k, struct{}{}) }

func (c *Cache) Contains(k Key) bool { return c.lru.Contains(k) }

// Forget drops k, typically after its copy was deleted. The key is still
// queued; removing an absent copy is a no-op.
func (c *Cache) Forget(k Key) { c.lru.Remove(k) }

func (c *Cache) Len() int { return c.lru.Len() }

// Notify fires after keys were queued for removal.
func (c *Cache) Notify() <-chan struct{} { return c.notify }

// Evicted drains the removal queue.
func (c *Cache) Evicted() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.evicted
	c.evicted = nil
	return keys
}
