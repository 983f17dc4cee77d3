package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries caps the memory store when no limit is configured.
const DefaultMaxEntries = 10_000

// MemoryConfig configures a Memory store.
type MemoryConfig struct {
	TTL        time.Duration
	MaxEntries int
	// CleanupInterval enables a background sweep of expired entries when > 0.
	CleanupInterval time.Duration
	Now             func() time.Time
}

type memoryItem struct {
	key   string
	entry Entry
}

// Memory is a TTL store bounded by MaxEntries with least-recently-used eviction.
// A single mutex guards the map, the recency list and the counters.
type Memory struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu        sync.Mutex
	items     map[string]*list.Element
	lru       *list.List // front = most recently used
	hits      int64
	misses    int64
	evictions int64

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Memory{
		ttl:         cfg.TTL,
		maxEntries:  cfg.MaxEntries,
		now:         cfg.Now,
		items:       make(map[string]*list.Element),
		lru:         list.New(),
		stopCleanup: make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go m.cleanupLoop(cfg.CleanupInterval)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.misses++
		return Entry{}, false, nil
	}
	item := el.Value.(*memoryItem)
	if !m.now().Before(item.entry.ExpiresAt) {
		m.removeElement(el)
		m.misses++
		return Entry{}, false, nil
	}

	m.lru.MoveToFront(el)
	m.hits++
	return item.entry, true, nil
}

func (m *Memory) Put(_ context.Context, key string, v Value) error {
	now := m.now()
	entry := Entry{Value: v, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		el.Value.(*memoryItem).entry = entry
		m.lru.MoveToFront(el)
		return nil
	}

	m.items[key] = m.lru.PushFront(&memoryItem{key: key, entry: entry})
	for m.lru.Len() > m.maxEntries {
		m.removeElement(m.lru.Back())
		m.evictions++
	}
	return nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Entries:   len(m.items),
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		TTL:       m.ttl,
	}, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.lru.Init()
	m.hits, m.misses, m.evictions = 0, 0, 0
	return nil
}

// PurgeExpired removes every expired entry and returns how many were dropped.
func (m *Memory) PurgeExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for el := m.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memoryItem).entry.ExpiresAt) {
			m.removeElement(el)
			purged++
		}
		el = prev
	}
	return purged
}

// size returns the number of stored entries, expired or not.
func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops the cleanup goroutine.
func (m *Memory) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.stopCleanup)
	})
	return nil
}

// removeElement must be called with mu held.
func (m *Memory) removeElement(el *list.Element) {
	m.lru.Remove(el)
	delete(m.items, el.Value.(*memoryItem).key)
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.PurgeExpired()
		case <-m.stopCleanup:
			return
		}
	}
}
