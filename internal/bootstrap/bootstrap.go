// Package bootstrap performs the one-time setup of an injection: it creates
// the registry and the companion session, registers the reserved root
// tweak and arms the supervisor. Setup is idempotent per Scope.
package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/steamtweaks/internal/companion"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/host"
	"github.com/vk/steamtweaks/internal/metrics"
	"github.com/vk/steamtweaks/internal/registry"
	"github.com/vk/steamtweaks/internal/supervisor"
)

// RootName is the reserved name of the root tweak. Uninstalling it reverts
// every other tweak and removes the scope bindings.
const RootName = "GlosSI"

// Deps configures what EnsureInstalled builds.
type Deps struct {
	CompanionURL      string
	CompanionOptions  []companion.Option
	SupervisorOptions []supervisor.Option
	Metrics           *metrics.Metrics
}

// Installation is the set of objects bound into a Scope.
type Installation struct {
	Registry   *registry.Registry
	Companion  *companion.Client
	Supervisor *supervisor.Supervisor
}

// Env returns the environment tweak modules register against.
func (i *Installation) Env(h host.Surface) registry.Env {
	return registry.Env{Registry: i.Registry, Companion: i.Companion, Host: h}
}

// Uninstall uninstalls the root tweak, which tears the whole installation down.
func (i *Installation) Uninstall(ctx context.Context) error {
	return i.Registry.UninstallOne(ctx, RootName)
}

// Scope is the page-level binding site for one Installation. Independently
// loaded callers find the installation through it instead of through
// explicit wiring.
type Scope struct {
	mu   sync.Mutex
	inst *Installation
}

// NewScope returns an empty Scope.
func NewScope() *Scope {
	return &Scope{}
}

// DefaultScope is the process-wide scope used at the injection boundary.
var DefaultScope = NewScope()

// Installation returns the bound installation, or nil.
func (s *Scope) Installation() *Installation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst
}

func (s *Scope) unbind(inst *Installation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == inst {
		s.inst = nil
	}
}

// EnsureInstalled returns the scope's installation, creating it first if
// the scope is empty. Calls after the first successful one have no side
// effects. ctx bounds the lifetime of the supervisor.
func EnsureInstalled(ctx context.Context, scope *Scope, deps Deps) (*Installation, error) {
	logger := ctxlog.FromContext(ctx)

	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.inst != nil {
		logger.Debug("Tweak bindings already present, skipping bootstrap.")
		return scope.inst, nil
	}

	reg := registry.New(registry.WithMetrics(deps.Metrics))
	client := companion.New(deps.CompanionURL, deps.CompanionOptions...)
	inst := &Installation{Registry: reg, Companion: client}

	teardown := func(ctx context.Context) {
		if err := reg.UninstallAll(ctx); err != nil {
			ctxlog.FromContext(ctx).Error("Teardown finished with uninstall failures.", "error", err)
		}
	}
	supOpts := append([]supervisor.Option{supervisor.WithMetrics(deps.Metrics)}, deps.SupervisorOptions...)
	inst.Supervisor = supervisor.New(client, teardown, supOpts...)

	root := registry.Funcs{
		// Runs inside EnsureInstalled, which holds scope.mu.
		InstallFn: func(ctx context.Context) (any, error) {
			scope.inst = inst
			return inst, nil
		},
		UninstallFn: func(ctx context.Context) error {
			err := reg.UninstallAll(ctx, RootName)
			inst.Supervisor.Retire()
			scope.unbind(inst)
			return err
		},
	}
	if _, err := reg.Register(ctx, RootName, root, false); err != nil {
		return nil, fmt.Errorf("failed to register root tweak: %w", err)
	}

	if err := inst.Supervisor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to arm supervisor: %w", err)
	}

	logger.Info("Tweak bindings installed.", "companion", client.BaseURL())
	return inst, nil
}
