// Package pipeline answers prompts: it resolves the action, serves cached answers, enforces the
// per-client quota, calls the completion service and sanitizes what comes back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/af-corp/dentassist/internal/action"
	"github.com/af-corp/dentassist/internal/cache"
	"github.com/af-corp/dentassist/internal/ratelimit"
	"github.com/af-corp/dentassist/internal/sanitize"
	"github.com/af-corp/dentassist/internal/telemetry"
	"github.com/af-corp/dentassist/internal/upstream"
)

const (
	MaxPromptRunes  = 5000
	MaxContextRunes = 2000
)

// Actions is the part of the action registry the pipeline reads.
type Actions interface {
	Resolve(id string) (action.Action, error)
	Suggest(id string) []string
	List() []action.Action
	Categories() map[string][]string
}

// Config selects the unknown-action policy.
type Config struct {
	// Strict fails unknown action ids with action.ErrUnknownAction instead of falling back.
	Strict        bool
	DefaultAction string
}

// Deps are the collaborators of a Pipeline. Cache may be nil to disable caching.
type Deps struct {
	Actions  Actions
	Cache    cache.Store
	Limiter  ratelimit.Limiter
	Upstream upstream.Client
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Request is one question from a client.
type Request struct {
	Prompt   string
	Action   string
	Context  string
	Priority Priority
	// FileText is text already extracted from an upload. FileDigest identifies the upload bytes;
	// when empty it is derived from FileText.
	FileText   string
	FileName   string
	FileDigest string
	ClientKey  string
	// Endpoint labels metrics and logs.
	Endpoint string
}

// Result is a successful answer.
type Result struct {
	Success         bool
	Action          string
	RequestedAction string
	Answer          string
	ProcessingTime  time.Duration
	Cached          bool
	Warnings        []string
	// RateLimit is the quota state after this request. Zero on cache hits.
	RateLimit ratelimit.LimitResult
}

type Pipeline struct {
	cfg      Config
	actions  Actions
	cache    cache.Store
	limiter  ratelimit.Limiter
	upstream upstream.Client
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, deps Deps) *Pipeline {
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = "default"
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Unlimited{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		cfg:      cfg,
		actions:  deps.Actions,
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		upstream: deps.Upstream,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
	}
}

// Handle runs one request. Errors are request-scoped:
//   - ErrInvalidRequest for rejected input
//   - action.ErrUnknownAction in strict mode
//   - *RateLimitedError when the client's quota is exhausted
//   - *upstream.Error when the completion service failed
func (p *Pipeline) Handle(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	res, err := p.handle(ctx, req, start)

	outcome := outcomeOf(err)
	labels := telemetry.RequestLabels{
		Endpoint:   req.Endpoint,
		Action:     req.Action,
		Outcome:    outcome,
		DurationMs: float64(p.now().Sub(start).Microseconds()) / 1000.0,
	}
	if res != nil {
		labels.Action = res.Action
		labels.Cached = res.Cached
	}
	p.metrics.RecordRequest(labels)
	return res, err
}

func (p *Pipeline) handle(ctx context.Context, req Request, start time.Time) (*Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	reqContext := strings.TrimSpace(req.Context)
	if err := validate(prompt, reqContext); err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if _, ok := priorityMaxTokens[priority]; !ok {
		return nil, invalid("priority %q must be one of low, normal, high, urgent", priority)
	}

	// Resolving
	act, warnings, err := p.resolve(ctx, req.Action)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Success:         true,
		Action:          act.ID,
		RequestedAction: req.Action,
		Warnings:        warnings,
	}

	// CacheCheck
	key := cache.Key(prompt, act.ID, contentDigest(reqContext, req.FileDigest, req.FileText))
	if entry, ok := p.lookup(ctx, key); ok {
		res.Answer = entry.Answer
		res.Cached = true
		res.ProcessingTime = p.now().Sub(start)
		p.logger.DebugContext(ctx, "answer served from cache", "action", act.ID, "client", req.ClientKey)
		return res, nil
	}

	// RateCheck
	limit, err := p.limiter.Check(ctx, req.ClientKey)
	if err != nil {
		p.logger.WarnContext(ctx, "rate limiter failed, allowing request", "client", req.ClientKey, "error", err)
		limit = ratelimit.LimitResult{Allowed: true, Limit: -1, Remaining: -1}
	}
	res.RateLimit = limit
	if !limit.Allowed {
		p.metrics.RecordRateLimited()
		p.logger.WarnContext(ctx, "rate limit exceeded", "client", req.ClientKey, "retry_after", limit.RetryAfter)
		return nil, &RateLimitedError{ClientKey: req.ClientKey, Limit: limit}
	}

	// Upstream
	raw, err := p.upstream.Complete(ctx, upstream.Completion{
		System:    act.Instruction,
		User:      buildUserMessage(prompt, reqContext, req.FileName, req.FileText),
		MaxTokens: maxTokens(priority, req.FileText != ""),
	})
	if err != nil {
		var upErr *upstream.Error
		if !errors.As(err, &upErr) {
			err = &upstream.Error{Provider: p.upstream.Name(), Err: err}
		}
		p.logger.ErrorContext(ctx, "completion failed", "action", act.ID, "client", req.ClientKey, "error", err)
		return nil, err
	}

	// Sanitize
	res.Answer = sanitize.Text(raw)

	// Store
	p.store(ctx, key, cache.Value{Answer: res.Answer, ActionID: act.ID})

	res.ProcessingTime = p.now().Sub(start)
	return res, nil
}

func validate(prompt, reqContext string) error {
	if prompt == "" {
		return invalid("prompt is empty")
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptRunes {
		return invalid("prompt has %d characters, the maximum is %d", n, MaxPromptRunes)
	}
	if n := utf8.RuneCountInString(reqContext); n > MaxContextRunes {
		return invalid("context has %d characters, the maximum is %d", n, MaxContextRunes)
	}
	return nil
}

// resolve applies the unknown-action policy. An empty id selects the default action silently.
func (p *Pipeline) resolve(ctx context.Context, id string) (action.Action, []string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = p.cfg.DefaultAction
	}

	act, err := p.actions.Resolve(id)
	if err == nil {
		return act, nil, nil
	}
	if !errors.Is(err, action.ErrUnknownAction) {
		return action.Action{}, nil, err
	}

	suggestions := p.actions.Suggest(id)
	if p.cfg.Strict {
		if len(suggestions) > 0 {
			err = fmt.Errorf("%w (did you mean %s?)", err, strings.Join(suggestions, ", "))
		}
		return action.Action{}, nil, err
	}

	fallback, ferr := p.actions.Resolve(p.cfg.DefaultAction)
	if ferr != nil {
		return action.Action{}, nil, fmt.Errorf("resolve default action: %w", ferr)
	}

	p.metrics.RecordFallback(id)
	p.logger.WarnContext(ctx, "unknown action, using default", "requested", id, "default", fallback.ID, "suggestions", suggestions)

	warning := fmt.Sprintf("Action '%s' inconnue, action '%s' utilisée.", id, fallback.ID)
	if len(suggestions) > 0 {
		warning += " Actions similaires : " + strings.Join(suggestions, ", ")
	}
	return fallback, []string{warning}, nil
}

func (p *Pipeline) lookup(ctx context.Context, key string) (cache.Entry, bool) {
	if p.cache == nil {
		return cache.Entry{}, false
	}
	entry, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.WarnContext(ctx, "cache lookup failed, treating as miss", "error", err)
		return cache.Entry{}, false
	}
	return entry, ok
}

// store is best-effort: a failed write is logged and the answer is still returned.
func (p *Pipeline) store(ctx context.Context, key string, v cache.Value) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(ctx, key, v); err != nil {
		p.logger.WarnContext(ctx, "cache write failed", "action", v.ActionID, "error", err)
	}
}

// CacheStats reports the answer cache. A disabled cache reports zeroes.
func (p *Pipeline) CacheStats(ctx context.Context) (cache.Stats, error) {
	if p.cache == nil {
		return cache.Stats{}, nil
	}
	return p.cache.Stats(ctx)
}

// ClearCache drops every cached answer and resets the counters.
func (p *Pipeline) ClearCache(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Clear(ctx)
}

func (p *Pipeline) ListActions() []action.Action {
	return p.actions.List()
}

func (p *Pipeline) ListCategories() map[string][]string {
	return p.actions.Categories()
}

func outcomeOf(err error) string {
	var upErr *upstream.Error
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, action.ErrUnknownAction):
		return "unknown_action"
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return "rate_limited"
	case errors.As(err, &upErr):
		if upErr.Timeout {
			return "upstream_timeout"
		}
		return "upstream_error"
	default:
		return "error"
	}
}
