package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agnivade/levenshtein"
)

// suggestDistance is the maximum edit distance for "did you mean" suggestions.
const suggestDistance = 2

// Options configures a Registry.
type Options struct {
	Logger *slog.Logger
	// PersistDefaults writes the built-in set to the source when it does not exist yet.
	PersistDefaults bool
	// DefaultAction must be present in every loaded set. Empty means "default".
	DefaultAction string
	Now           func() time.Time
}

type snapshot struct {
	byID         map[string]Action
	loadedAt     time.Time
	fromDefaults bool
}

// Registry holds the active action set. Reads are lock-free against an immutable snapshot;
// writers build a new snapshot and swap it in, so readers never observe a partial update.
type Registry struct {
	source Source
	logger *slog.Logger
	now    func() time.Time

	persistDefaults bool
	defaultID       string

	mu     sync.Mutex // serializes writers
	base   []Action
	custom map[string]Action
	snap   atomic.Pointer[snapshot]
}

// NewRegistry loads actions from source. It never fails: when the source is absent or malformed
// the built-in defaults are used, and persisted if opts.PersistDefaults is set.
func NewRegistry(ctx context.Context, source Source, opts Options) *Registry {
	r := &Registry{
		source:          source,
		logger:          opts.Logger,
		now:             opts.Now,
		persistDefaults: opts.PersistDefaults,
		defaultID:       opts.DefaultAction,
		custom:          make(map[string]Action),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.defaultID == "" {
		r.defaultID = "default"
	}

	if err := r.Reload(ctx); err != nil {
		r.logger.Warn("using default actions", "source", r.describe(), "error", err)
		r.fallBackToDefaults(ctx, err)
	}
	return r
}

// Reload re-reads the source. On failure the current snapshot is kept and the error returned.
func (r *Registry) Reload(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("%w: no source configured", ErrSourceNotFound)
	}
	actions, err := r.source.Load(ctx)
	if err != nil {
		return err
	}
	if err := RequireAction(actions, r.defaultID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = actions
	r.publish(false)
	r.logger.Info("actions loaded", "source", r.describe(), "count", len(actions))
	return nil
}

func (r *Registry) fallBackToDefaults(ctx context.Context, cause error) {
	r.mu.Lock()
	r.base = DefaultActions()
	r.publish(true)
	r.mu.Unlock()

	if !r.persistDefaults || !errors.Is(cause, ErrSourceNotFound) {
		return
	}
	p, ok := r.source.(Persister)
	if !ok {
		return
	}
	if err := p.Save(ctx, DefaultDocument(r.now())); err != nil {
		r.logger.Error("failed to write default actions", "source", r.describe(), "error", err)
		return
	}
	r.logger.Info("default actions written", "source", r.describe())
}

// publish builds a new snapshot from base and custom. Must be called with mu held.
func (r *Registry) publish(fromDefaults bool) {
	byID := make(map[string]Action, len(r.base)+len(r.custom))
	for _, a := range r.base {
		byID[a.ID] = a
	}
	for id, a := range r.custom {
		byID[id] = a
	}
	r.snap.Store(&snapshot{byID: byID, loadedAt: r.now(), fromDefaults: fromDefaults})
}

func (r *Registry) describe() string {
	if r.source == nil {
		return "builtin"
	}
	return r.source.Describe()
}

// Resolve returns the action registered under id.
func (r *Registry) Resolve(id string) (Action, error) {
	a, ok := r.snap.Load().byID[id]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, id)
	}
	return a, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.snap.Load().byID[id]
	return ok
}

// List returns all actions ordered by id.
func (r *Registry) List() []Action {
	snap := r.snap.Load()
	out := make([]Action, 0, len(snap.byID))
	for _, a := range snap.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Categories groups action ids by category. Empty categories are omitted.
func (r *Registry) Categories() map[string][]string {
	out := make(map[string][]string)
	for _, a := range r.List() {
		c := CategoryOf(a)
		out[c] = append(out[c], a.ID)
	}
	return out
}

// AddCustom inserts or replaces an action. Custom actions survive Reload.
func (r *Registry) AddCustom(a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[a.ID] = a
	r.publish(r.snap.Load().fromDefaults)
	r.logger.Info("custom action added", "action", a.ID)
	return nil
}

// Suggest returns registered ids within a small edit distance of id, case-insensitively.
func (r *Registry) Suggest(id string) []string {
	needle := strings.ToLower(id)
	var out []string
	for _, a := range r.List() {
		if levenshtein.ComputeDistance(needle, strings.ToLower(a.ID)) <= suggestDistance {
			out = append(out, a.ID)
		}
	}
	return out
}

// Stats summarizes the registry for discovery and health endpoints.
type Stats struct {
	TotalActions int            `json:"total_actions"`
	Categories   map[string]int `json:"categories"`
	LastReload   time.Time      `json:"last_reload"`
	Source       string         `json:"source"`
	SourceExists bool           `json:"source_exists"`
	Defaults     bool           `json:"defaults"`
}

func (r *Registry) Stats() Stats {
	snap := r.snap.Load()
	cats := make(map[string]int)
	for c, ids := range r.Categories() {
		cats[c] = len(ids)
	}

	exists := false
	if e, ok := r.source.(interface{ Exists() bool }); ok {
		exists = e.Exists()
	} else if r.source != nil {
		exists = !snap.fromDefaults
	}

	return Stats{
		TotalActions: len(snap.byID),
		Categories:   cats,
		LastReload:   snap.loadedAt,
		Source:       r.describe(),
		SourceExists: exists,
		Defaults:     snap.fromDefaults,
	}
}
