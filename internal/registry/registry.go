package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/metrics"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// handle is the registry's record of one installed tweak.
type handle struct {
	name      string
	lifecycle Lifecycle
	uninstall func(ctx context.Context) error
	// claimed is set by the first uninstall path that picks the handle up.
	claimed atomic.Bool
}

func newHandle(name string, lc Lifecycle) *handle {
	h := &handle{name: name, lifecycle: lc}
	if u, ok := lc.(Uninstaller); ok {
		h.uninstall = u.Uninstall
	}
	return h
}

// Registry holds the installed tweaks of a single injection.
type Registry struct {
	mu      sync.Mutex
	handles *orderedmap.OrderedMap[string, *handle]
	metrics *metrics.Metrics
}

// Option configures a Registry
type Option func(*Registry)

// WithMetrics records the installed count and failures on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates and initializes a new Registry instance.
func New(opts ...Option) *Registry {
	r := &Registry{
		handles: orderedmap.New[string, *handle](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores lc under name and then runs its install, returning the
// install result. A taken name yields a *ConflictError unless force is
// set, in which case the old handle is replaced without being uninstalled
// and the tweak moves to the end of the teardown order.
//
// The handle is stored before install runs: a failing install leaves the
// tweak registered, so its uninstall still runs at teardown.
func (r *Registry) Register(ctx context.Context, name string, lc Lifecycle, force bool) (any, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if lc == nil {
		return nil, fmt.Errorf("registry: tweak %s has no lifecycle", name)
	}
	logger := ctxlog.FromContext(ctx).With("tweak", name)

	h := newHandle(name, lc)

	r.mu.Lock()
	if _, exists := r.handles.Get(name); exists {
		if !force {
			r.mu.Unlock()
			logger.Warn("Tweak already installed, refusing duplicate registration.")
			return nil, &ConflictError{Name: name}
		}
		r.handles.Delete(name)
		logger.Debug("Replacing installed tweak.")
	}
	r.handles.Set(name, h)
	n := r.handles.Len()
	r.mu.Unlock()
	r.metrics.SetInstalled(n)

	logger.Debug("Registering tweak.", "force", force, "reversible", h.uninstall != nil)
	v, err := guard(func() (any, error) { return lc.Install(ctx) })
	if err != nil {
		r.metrics.InstallFailed(name)
		logger.Error("Tweak install failed.", "error", err)
		return v, &InstallError{Name: name, Err: err}
	}
	logger.Info("Tweak installed.")
	return v, nil
}

// UninstallOne runs the named tweak's uninstall, if it has one, and removes
// it from the registry whether or not the uninstall succeeded.
func (r *Registry) UninstallOne(ctx context.Context, name string) error {
	r.mu.Lock()
	h, ok := r.handles.Get(name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return r.uninstall(ctx, h)
}

// UninstallAll uninstalls every registered tweak except the excluded names,
// in registration order. A failing uninstall is logged and collected; it
// never stops the walk. Handles removed by a re-entrant uninstall during
// the walk are skipped.
func (r *Registry) UninstallAll(ctx context.Context, excluding ...string) error {
	logger := ctxlog.FromContext(ctx)
	skip := make(map[string]struct{}, len(excluding))
	for _, name := range excluding {
		skip[name] = struct{}{}
	}

	r.mu.Lock()
	snapshot := make([]*handle, 0, r.handles.Len())
	for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
		if _, excluded := skip[pair.Key]; !excluded {
			snapshot = append(snapshot, pair.Value)
		}
	}
	r.mu.Unlock()

	logger.Debug("Uninstalling tweaks.", "count", len(snapshot), "excluding", excluding)

	var errs []error
	for _, h := range snapshot {
		if !r.holds(h) {
			continue
		}
		if err := r.uninstall(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("Tweaks uninstalled.", "attempted", len(snapshot), "failed", len(errs), "remaining", r.Len())
	return errors.Join(errs...)
}

func (r *Registry) uninstall(ctx context.Context, h *handle) error {
	if !h.claimed.CompareAndSwap(false, true) {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("tweak", h.name)

	var err error
	if h.uninstall != nil {
		_, err = guard(func() (struct{}, error) { return struct{}{}, h.uninstall(ctx) })
	}

	r.mu.Lock()
	if cur, ok := r.handles.Get(h.name); ok && cur == h {
		r.handles.Delete(h.name)
	}
	n := r.handles.Len()
	r.mu.Unlock()
	r.metrics.SetInstalled(n)

	if err != nil {
		r.metrics.UninstallFailed(h.name)
		logger.Error("Tweak uninstall failed, handle removed anyway.", "error", err)
		return &UninstallError{Name: h.name, Err: err}
	}
	logger.Info("Tweak uninstalled.")
	return nil
}

// holds reports whether h is still the registered handle for its name.
func (r *Registry) holds(h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.handles.Get(h.name)
	return ok && cur == h
}

// Has reports whether a tweak named name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles.Get(name)
	return ok
}

// Len returns the number of registered tweaks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles.Len()
}

// Names returns the registered tweak names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, r.handles.Len())
	for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
