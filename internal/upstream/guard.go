package upstream

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/af-corp/dentassist/internal/telemetry"
)

// GuardConfig tunes retries and the circuit breaker around a Client.
type GuardConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// FailureThreshold <= 0 disables the breaker.
	FailureThreshold      int
	RecoveryProbeInterval time.Duration
}

// Guard retries transient failures with exponential backoff and stops calling an upstream that
// keeps failing.
type Guard struct {
	inner   Client
	cfg     GuardConfig
	breaker *CircuitBreaker
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewGuard(inner Client, cfg GuardConfig, metrics *telemetry.Metrics, logger *slog.Logger) *Guard {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.RecoveryProbeInterval <= 0 {
		cfg.RecoveryProbeInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		inner:   inner,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.RecoveryProbeInterval),
		metrics: metrics,
		logger:  logger,
	}
}

func (g *Guard) Name() string { return g.inner.Name() }

// Breaker exposes the circuit for health reporting.
func (g *Guard) Breaker() *CircuitBreaker { return g.breaker }

func (g *Guard) Complete(ctx context.Context, c Completion) (string, error) {
	if !g.breaker.Allow() {
		return "", &Error{Provider: g.inner.Name(), Err: ErrCircuitOpen}
	}

	var (
		answer  string
		attempt int
	)
	op := func() error {
		attempt++
		start := time.Now()
		text, err := g.inner.Complete(ctx, c)
		g.metrics.RecordUpstream(g.inner.Name(), statusLabel(err), float64(time.Since(start).Milliseconds()))
		if err == nil {
			answer = text
			return nil
		}

		var upErr *Error
		if errors.As(err, &upErr) && upErr.Retryable {
			g.logger.WarnContext(ctx, "completion attempt failed",
				"provider", g.inner.Name(),
				"attempt", attempt,
				"status", upErr.StatusCode,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = g.cfg.InitialInterval
	expo.MaxInterval = g.cfg.MaxInterval
	expo.MaxElapsedTime = 0
	var bo backoff.BackOff = expo
	if g.cfg.MaxRetries >= 0 {
		bo = backoff.WithMaxRetries(expo, uint64(g.cfg.MaxRetries))
	}

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	if err != nil {
		var upErr *Error
		if !errors.As(err, &upErr) {
			upErr = transportError(g.inner.Name(), err)
			err = upErr
		}
		// Cancelled callers and rejected requests do not count against the breaker.
		if ctx.Err() == nil && upErr.Retryable {
			g.breaker.RecordFailure()
		} else {
			g.breaker.releaseProbe()
		}
		return "", err
	}

	g.breaker.RecordSuccess()
	return answer, nil
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var upErr *Error
	if errors.As(err, &upErr) {
		if upErr.Timeout {
			return "timeout"
		}
		if upErr.StatusCode != 0 {
			return strconv.Itoa(upErr.StatusCode)
		}
	}
	return "error"
}
