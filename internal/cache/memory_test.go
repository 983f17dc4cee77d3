package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestKey(t *testing.T) {
	base := Key("Douleur molaire", "dental_diagnosis", "")

	tests := []struct {
		name string
		key  string
		same bool
	}{
		{"identical", Key("Douleur molaire", "dental_diagnosis", ""), true},
		{"surrounding whitespace", Key("  Douleur molaire\n", "dental_diagnosis", ""), true},
		{"explicit no_file", Key("Douleur molaire", "dental_diagnosis", "no_file"), true},
		{"case differs", Key("douleur molaire", "dental_diagnosis", ""), false},
		{"other action", Key("Douleur molaire", "default", ""), false},
		{"with file", Key("Douleur molaire", "dental_diagnosis", "abc123"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key == base; got != tt.same {
				t.Errorf("key equality = %v, want %v", got, tt.same)
			}
		})
	}

	if len(base) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(base))
	}
}

func TestMemory_PutGet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(MemoryConfig{Now: clock.Now})

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := m.Put(ctx, "k", Value{Answer: "réponse", ActionID: "default"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if entry.Answer != "réponse" || entry.ActionID != "default" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if !entry.ExpiresAt.Equal(clock.Now().Add(DefaultTTL)) {
		t.Errorf("expected expiry at now+TTL, got %v", entry.ExpiresAt)
	}

	stats, _ := m.Stats(ctx)
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMemory_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(MemoryConfig{TTL: 30 * time.Minute, Now: clock.Now})

	m.Put(ctx, "k", Value{Answer: "a"})

	clock.Advance(29*time.Minute + 59*time.Second)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("expected hit just before expiry")
	}

	clock.Advance(time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss at expiry")
	}
	if m.size() != 0 {
		t.Errorf("expired entry should be dropped on read, len=%d", m.size())
	}
}

func TestMemory_PutReplacesAndRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(MemoryConfig{TTL: time.Minute, Now: clock.Now})

	m.Put(ctx, "k", Value{Answer: "old"})
	clock.Advance(50 * time.Second)
	m.Put(ctx, "k", Value{Answer: "new"})
	clock.Advance(50 * time.Second)

	entry, ok, _ := m.Get(ctx, "k")
	if !ok || entry.Answer != "new" {
		t.Fatalf("expected refreshed entry, got ok=%v entry=%+v", ok, entry)
	}
	if m.size() != 1 {
		t.Errorf("expected a single entry, got %d", m.size())
	}
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{MaxEntries: 2})

	m.Put(ctx, "a", Value{Answer: "A"})
	m.Put(ctx, "b", Value{Answer: "B"})
	m.Get(ctx, "a") // a is now most recent
	m.Put(ctx, "c", Value{Answer: "C"})

	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Error("expected a to survive")
	}
	if _, ok, _ := m.Get(ctx, "c"); !ok {
		t.Error("expected c to be present")
	}

	stats, _ := m.Stats(ctx)
	if stats.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestMemory_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(MemoryConfig{TTL: 10 * time.Minute, Now: clock.Now})

	m.Put(ctx, "old", Value{Answer: "1"})
	clock.Advance(6 * time.Minute)
	m.Put(ctx, "fresh", Value{Answer: "2"})
	clock.Advance(5 * time.Minute)

	if n := m.PurgeExpired(); n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	if m.size() != 1 {
		t.Errorf("expected 1 remaining, got %d", m.size())
	}
}

func TestMemory_ClearResetsStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{})

	for i := 0; i < 5; i++ {
		m.Put(ctx, fmt.Sprintf("k%d", i), Value{Answer: "x"})
	}
	m.Get(ctx, "k1")
	m.Get(ctx, "missing")

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	stats, _ := m.Stats(ctx)
	if stats.Entries != 0 || stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("expected zeroed stats after clear, got %+v", stats)
	}
	if _, ok, _ := m.Get(ctx, "k1"); ok {
		t.Error("expected miss after clear")
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{MaxEntries: 50})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*j)%80)
				m.Put(ctx, key, Value{Answer: key})
				m.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if m.size() > 50 {
		t.Errorf("cache exceeded its bound: %d", m.size())
	}
}

func TestMemory_CleanupLoopStops(t *testing.T) {
	m := NewMemory(MemoryConfig{TTL: time.Millisecond, CleanupInterval: 5 * time.Millisecond})
	m.Put(context.Background(), "k", Value{Answer: "x"})

	deadline := time.Now().Add(2 * time.Second)
	for m.size() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.size() != 0 {
		t.Error("expected background sweep to drop the expired entry")
	}

	m.Close()
	m.Close() // second close is a no-op
}
