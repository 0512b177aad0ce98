package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/dupguard/errors"
)

type hybridEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero when the cache has no TTL
}

func (e *hybridEntry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// hybridCache evicts the least recently used entry once maxSize is exceeded,
// and drops entries ttl after their last write. Reads never extend expiry.
type hybridCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
	now     func() time.Time

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLRU creates a size-bounded cache without expiry.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	return NewHybrid[V](context.Background(), maxSize, 0, 0, options...)
}

// NewHybrid creates a cache bounded by maxSize entries whose entries expire ttl
// after they were last written. A positive cleanupInterval starts a background
// sweep that runs until ctx is done or Close is called.
func NewHybrid[V any](
	ctx context.Context, maxSize int, ttl, cleanupInterval time.Duration, options ...Option[V],
) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewHybrid",
			fmt.Sprintf("max size must be positive, got %d", maxSize))
	}
	if ttl < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewHybrid",
			fmt.Sprintf("ttl cannot be negative, got %v", ttl))
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewHybrid", "metrics registration")
		}
	}

	c := &hybridCache[V]{
		maxSize:  maxSize,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		stats:    NewStatistics(),
		metrics:  metrics,
		evictFn:  opts.evictCallback,
		now:      opts.clock,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if ttl > 0 && cleanupInterval > 0 {
		go c.cleanup(ctx, cleanupInterval)
	} else {
		close(c.done)
	}

	return c, nil
}

func (c *hybridCache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		c.recordMiss()
		return zero, false
	}

	entry := element.Value.(*hybridEntry[V])
	if entry.expired(c.now()) {
		c.removeElement(element)
		size := len(c.items)
		c.mu.Unlock()

		c.afterEvict(entry, size)
		c.recordMiss()
		return zero, false
	}

	c.order.MoveToFront(element)
	value := entry.value
	c.mu.Unlock()

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return value, true
}

func (c *hybridCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()

	if element, exists := c.items[key]; exists {
		entry := element.Value.(*hybridEntry[V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(element)
		c.mu.Unlock()

		c.stats.Set()
		if c.metrics != nil {
			c.metrics.recordSet()
		}
		return false, nil
	}

	c.items[key] = c.order.PushFront(&hybridEntry[V]{key: key, value: value, expiresAt: expiresAt})

	var evicted *hybridEntry[V]
	if len(c.items) > c.maxSize {
		if back := c.order.Back(); back != nil {
			evicted = back.Value.(*hybridEntry[V])
			c.removeElement(back)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if evicted != nil {
		c.afterEvict(evicted, size)
	}
	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}

	return true, nil
}

func (c *hybridCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}
	c.removeElement(element)
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Delete()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(size)
	}
	return true, nil
}

func (c *hybridCache[V]) Clear() error {
	c.mu.Lock()
	var dropped []*hybridEntry[V]
	if c.evictFn != nil {
		for element := c.order.Back(); element != nil; element = element.Prev() {
			dropped = append(dropped, element.Value.(*hybridEntry[V]))
		}
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	for _, entry := range dropped {
		c.evictFn(entry.key, entry.value)
	}

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	return nil
}

func (c *hybridCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *hybridCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*hybridEntry[V])
		if !entry.expired(now) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

func (c *hybridCache[V]) Stats() *Statistics {
	return c.stats
}

func (c *hybridCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

// removeElement must be called with the mutex held.
func (c *hybridCache[V]) removeElement(element *list.Element) {
	entry := element.Value.(*hybridEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}

// afterEvict runs outside the mutex so callbacks may use the cache.
func (c *hybridCache[V]) afterEvict(entry *hybridEntry[V], size int) {
	if c.evictFn != nil {
		c.evictFn(entry.key, entry.value)
	}
	c.stats.Eviction()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordEviction()
		c.metrics.updateSize(size)
	}
}

func (c *hybridCache[V]) recordMiss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *hybridCache[V]) cleanup(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *hybridCache[V]) removeExpired() {
	now := c.now()
	var expired []*hybridEntry[V]

	c.mu.Lock()
	for element := c.order.Front(); element != nil; {
		next := element.Next()
		entry := element.Value.(*hybridEntry[V])
		if entry.expired(now) {
			expired = append(expired, entry)
			c.removeElement(element)
		}
		element = next
	}
	size := len(c.items)
	c.mu.Unlock()

	for _, entry := range expired {
		c.afterEvict(entry, size)
	}
}
