package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is an in-process LRU cache. Suitable for single-node CLI and
// server use; compiled streams for large protocols can reach hundreds
// of kilobytes, so both entry count and total bytes are bounded.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	config     Config
	currentMem int64
	hits       int64
	misses     int64
	stopCh     chan struct{}
	stopped    bool
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	size      int64
}

// NewMemory creates an in-memory cache and starts its expiry sweeper.
func NewMemory(cfg Config) *Memory {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = time.Hour
	}
	c := &Memory{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		config:  cfg,
		stopCh:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Memory) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Memory) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []string
	for key, elem := range c.entries {
		if now.After(elem.Value.(*memoryEntry).expiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.remove(key)
	}
}

func (c *Memory) remove(key string) {
	if elem, ok := c.entries[key]; ok {
		c.currentMem -= elem.Value.(*memoryEntry).size
		c.lru.Remove(elem)
		delete(c.entries, key)
	}
}

// evict frees room for an incoming entry, oldest first.
func (c *Memory) evict(needed int64) {
	for c.lru.Len() > 0 && c.config.MaxMemory > 0 && c.currentMem+needed > c.config.MaxMemory {
		c.remove(c.lru.Back().Value.(*memoryEntry).key)
	}
	for c.lru.Len() > 0 && c.config.MaxEntries > 0 && c.lru.Len() >= c.config.MaxEntries {
		c.remove(c.lru.Back().Value.(*memoryEntry).key)
	}
}

// Get implements Cache.
func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrMiss
	}
	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.remove(key)
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrMiss
	}

	c.lru.MoveToFront(elem)
	atomic.AddInt64(&c.hits, 1)

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set implements Cache.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(key)
	c.evict(int64(len(stored)))

	entry := &memoryEntry{
		key:       key,
		value:     stored,
		expiresAt: time.Now().Add(ttl),
		size:      int64(len(stored)),
	}
	c.entries[key] = c.lru.PushFront(entry)
	c.currentMem += entry.size
	return nil
}

// Delete implements Cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
	return nil
}

// Exists implements Cache.
func (c *Memory) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return time.Now().Before(elem.Value.(*memoryEntry).expiresAt), nil
}

// Purge implements Cache.
func (c *Memory) Purge(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
	c.currentMem = 0
	return nil
}

// Close stops the sweeper and drops all entries.
func (c *Memory) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.stopCh)
		c.stopped = true
	}
	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
	c.currentMem = 0
	return nil
}

// Health implements Cache.
func (c *Memory) Health(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errors.New("cache is closed")
	}
	return nil
}

// Stats implements Cache.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Entries:    int64(len(c.entries)),
		MemoryUsed: c.currentMem,
	}
}
