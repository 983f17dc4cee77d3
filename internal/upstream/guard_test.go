package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/af-corp/dentassist/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

type scriptedClient struct {
	calls   atomic.Int32
	results []error
	answer  string
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) Complete(_ context.Context, _ Completion) (string, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.results) && s.results[i] != nil {
		return "", s.results[i]
	}
	return s.answer, nil
}

func fastGuard(inner Client, retries, threshold int) *Guard {
	return NewGuard(inner, GuardConfig{
		MaxRetries:            retries,
		InitialInterval:       time.Millisecond,
		MaxInterval:           2 * time.Millisecond,
		FailureThreshold:      threshold,
		RecoveryProbeInterval: time.Hour,
	}, telemetry.NewMetrics(prometheus.NewRegistry()), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGuard_RetriesTransientFailure(t *testing.T) {
	inner := &scriptedClient{
		results: []error{statusError("scripted", http.StatusServiceUnavailable, nil)},
		answer:  "ok",
	}
	g := fastGuard(inner, 1, 5)

	answer, err := g.Complete(context.Background(), Completion{User: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "ok" || inner.calls.Load() != 2 {
		t.Errorf("expected success on second attempt, got %q after %d calls", answer, inner.calls.Load())
	}
}

func TestGuard_DoesNotRetryPermanentFailure(t *testing.T) {
	inner := &scriptedClient{results: []error{statusError("scripted", http.StatusBadRequest, nil)}}
	g := fastGuard(inner, 3, 5)

	_, err := g.Complete(context.Background(), Completion{User: "q"})
	var upErr *Error
	if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", inner.calls.Load())
	}
}

func TestGuard_GivesUpAfterMaxRetries(t *testing.T) {
	fail := statusError("scripted", http.StatusBadGateway, nil)
	inner := &scriptedClient{results: []error{fail, fail, fail, fail}}
	g := fastGuard(inner, 2, 10)

	_, err := g.Complete(context.Background(), Completion{User: "q"})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls.Load())
	}
}

func TestGuard_OpensCircuit(t *testing.T) {
	fail := statusError("scripted", http.StatusInternalServerError, nil)
	inner := &scriptedClient{results: []error{fail, fail, fail}}
	g := fastGuard(inner, 0, 2)

	g.Complete(context.Background(), Completion{})
	g.Complete(context.Background(), Completion{})

	_, err := g.Complete(context.Background(), Completion{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("open circuit must not call upstream, calls=%d", inner.calls.Load())
	}
	if g.Breaker().State() != StateOpen {
		t.Errorf("expected open breaker, got %s", g.Breaker().State())
	}
}

func TestGuard_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &scriptedClient{results: []error{transportError("scripted", context.Canceled)}}
	g := fastGuard(inner, 3, 5)

	_, err := g.Complete(ctx, Completion{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGuard_CallerFailuresDoNotOpenCircuit(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
	}{
		{"cancelled caller", cancelled, transportError("scripted", context.Canceled)},
		{"caller deadline", cancelled, transportError("scripted", context.DeadlineExceeded)},
		{"rejected request", context.Background(), statusError("scripted", http.StatusBadRequest, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedClient{results: []error{tt.err, tt.err, tt.err}, answer: "ok"}
			g := fastGuard(inner, 0, 3)

			for i := 0; i < 3; i++ {
				if _, err := g.Complete(tt.ctx, Completion{}); err == nil {
					t.Fatalf("call %d: expected error", i)
				}
			}
			if g.Breaker().State() != StateClosed {
				t.Fatalf("expected closed breaker, got %s", g.Breaker().State())
			}
			answer, err := g.Complete(context.Background(), Completion{})
			if err != nil || answer != "ok" {
				t.Errorf("healthy caller refused: %q, %v", answer, err)
			}
		})
	}
}

func TestGuard_CancelledProbeKeepsCircuitUsable(t *testing.T) {
	fail := statusError("scripted", http.StatusServiceUnavailable, nil)
	inner := &scriptedClient{results: []error{fail, transportError("scripted", context.Canceled)}, answer: "ok"}
	g := NewGuard(inner, GuardConfig{
		MaxRetries:            0,
		InitialInterval:       time.Millisecond,
		FailureThreshold:      1,
		RecoveryProbeInterval: time.Millisecond,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	g.Complete(context.Background(), Completion{})
	time.Sleep(5 * time.Millisecond)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Complete(cancelled, Completion{}); err == nil {
		t.Fatal("expected the cancelled probe to fail")
	}

	answer, err := g.Complete(context.Background(), Completion{})
	if err != nil || answer != "ok" {
		t.Errorf("expected the next probe to go through, got %q, %v", answer, err)
	}
	if g.Breaker().State() != StateClosed {
		t.Errorf("expected closed breaker after a good probe, got %s", g.Breaker().State())
	}
}
