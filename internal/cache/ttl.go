// Package cache provides the time-bucketed memo used by the event resolver.
//
// Entries are stamped with the TTL bucket (wall clock divided by a fixed
// window) in which they were stored. A lookup only hits when the entry's
// bucket equals the current one; expiry is lazy and an expired entry stays in
// place until a newer value for the same key supersedes it or the LRU evicts
// it.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultWindow   = 60 * time.Second
	DefaultCapacity = 64
)

// Bucketer turns wall-clock time into a coarse generation number.
type Bucketer struct {
	Window time.Duration
	Now    func() time.Time
}

// Bucket returns the current generation. Two instants inside the same window
// map to the same value.
func (b Bucketer) Bucket() int64 {
	window := b.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().UnixNano() / int64(window)
}

type entry[V any] struct {
	generation int64
	value      V
}

// TTL is a capacity-bounded LRU whose entries are valid for a single bucket.
// It is safe for concurrent use.
type TTL[K comparable, V any] struct {
	clock Bucketer
	items *lru.Cache[K, entry[V]]
}

// New creates a TTL cache. capacity <= 0 selects DefaultCapacity.
func New[K comparable, V any](capacity int, clock Bucketer) *TTL[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	items, err := lru.New[K, entry[V]](capacity)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above.
		panic(err)
	}
	return &TTL[K, V]{clock: clock, items: items}
}

// Get returns the value stored for key during the current bucket.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	gen := c.clock.Bucket()
	e, ok := c.items.Get(key)
	if !ok || e.generation != gen {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value for key in the current bucket, replacing any older entry.
func (c *TTL[K, V]) Set(key K, value V) {
	c.items.Add(key, entry[V]{generation: c.clock.Bucket(), value: value})
}

// SetAt stores value under an explicit generation. Used when the bucket was
// sampled before a slow fetch started.
func (c *TTL[K, V]) SetAt(key K, generation int64, value V) {
	c.items.Add(key, entry[V]{generation: generation, value: value})
}

// Bucket exposes the cache's current generation.
func (c *TTL[K, V]) Bucket() int64 {
	return c.clock.Bucket()
}

// Len counts stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	return c.items.Len()
}

func (c *TTL[K, V]) Purge() {
	c.items.Purge()
}
