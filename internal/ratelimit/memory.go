package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int64
}

// Memory keeps one window per client in process memory.
type Memory struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemory returns an in-memory limiter. now may be nil.
func NewMemory(cfg Config, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		cfg:     cfg.withDefaults(),
		now:     now,
		windows: make(map[string]*window),
	}
}

func (m *Memory) Check(_ context.Context, key string) (LimitResult, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(m.cfg.Window)) {
		w = &window{start: now}
		m.windows[key] = w
	}

	resetAt := w.start.Add(m.cfg.Window)
	if w.count >= m.cfg.Limit {
		return LimitResult{
			Allowed:    false,
			Limit:      m.cfg.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	w.count++
	return LimitResult{
		Allowed:   true,
		Limit:     m.cfg.Limit,
		Remaining: m.cfg.Limit - w.count,
		ResetAt:   resetAt,
	}, nil
}

// count returns the requests recorded for key in its current window.
func (m *Memory) count(key string) int64 {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(m.cfg.Window)) {
		return 0
	}
	return w.count
}

// Prune drops windows that have ended and returns how many were removed.
func (m *Memory) Prune() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for key, w := range m.windows {
		if !now.Before(w.start.Add(m.cfg.Window)) {
			delete(m.windows, key)
			pruned++
		}
	}
	return pruned
}

// ActiveClients returns the number of tracked windows, ended or not.
func (m *Memory) ActiveClients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// RunPruner calls Prune every interval until ctx is done.
func (m *Memory) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Prune()
		case <-ctx.Done():
			return
		}
	}
}
