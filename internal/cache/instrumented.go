package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/dentassist/internal/telemetry"
)

// Instrumented wraps a Store with debug logging and lookup metrics.
type Instrumented struct {
	inner   Store
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewInstrumented(inner Store, metrics *telemetry.Metrics, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{inner: inner, metrics: metrics, logger: logger}
}

func (c *Instrumented) Get(ctx context.Context, key string) (Entry, bool, error) {
	start := time.Now()
	entry, ok, err := c.inner.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
	}
	c.metrics.RecordCacheLookup(result)

	attrs := []any{
		"key", shortKey(key),
		"result", result,
		"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if err != nil {
		c.logger.WarnContext(ctx, "cache get failed", append(attrs, "error", err)...)
	} else {
		c.logger.DebugContext(ctx, "cache get", attrs...)
	}
	return entry, ok, err
}

func (c *Instrumented) Put(ctx context.Context, key string, v Value) error {
	err := c.inner.Put(ctx, key, v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache put failed", "key", shortKey(key), "error", err)
	} else {
		c.logger.DebugContext(ctx, "cache put", "key", shortKey(key), "action", v.ActionID)
	}
	return err
}

func (c *Instrumented) Stats(ctx context.Context) (Stats, error) {
	return c.inner.Stats(ctx)
}

func (c *Instrumented) Clear(ctx context.Context) error {
	err := c.inner.Clear(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "cache clear failed", "error", err)
	} else {
		c.logger.InfoContext(ctx, "cache cleared")
	}
	return err
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
