package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/steamtweaks/internal/bootstrap"
	"github.com/vk/steamtweaks/internal/cefhost"
	"github.com/vk/steamtweaks/internal/config"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/host"
	"github.com/vk/steamtweaks/internal/metrics"
	"github.com/vk/steamtweaks/internal/registry"
)

// HostConnector binds to the host surface described by cef. The returned
// function releases the binding.
type HostConnector func(ctx context.Context, cef config.CEF) (host.Surface, func(), error)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	promReg *prometheus.Registry
	metrics *metrics.Metrics
	scope   *bootstrap.Scope
	connect HostConnector
	modules []registry.Module

	reloadDebounce time.Duration
	reloadMu       sync.Mutex
	httpServer     *http.Server

	mu       sync.Mutex
	settings *config.Config
	inst     *bootstrap.Installation
	surface  host.Surface
}

// Option customizes an App.
type Option func(*App)

// WithHostConnector replaces the CEF connection, e.g. with a fake host.
func WithHostConnector(fn HostConnector) Option {
	return func(a *App) { a.connect = fn }
}

// WithScope binds installations into s instead of bootstrap.DefaultScope.
func WithScope(s *bootstrap.Scope) Option {
	return func(a *App) { a.scope = s }
}

// WithModules replaces the compiled-in tweak list.
func WithModules(mods ...registry.Module) Option {
	return func(a *App) { a.modules = mods }
}

// WithReloadDebounce sets how long config file events are coalesced.
func WithReloadDebounce(d time.Duration) Option {
	return func(a *App) { a.reloadDebounce = d }
}

// NewApp is the constructor for the main application. It loads the config
// file and returns an App with its own isolated logger and metrics registry.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	settings, err := cfg.loadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "companion", settings.Companion.BaseURL, "cef", settings.CEF.DebugURL)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		outW:           outW,
		logger:         logger,
		config:         cfg,
		promReg:        promReg,
		metrics:        metrics.New(promReg),
		scope:          bootstrap.DefaultScope,
		connect:        connectCEF,
		reloadDebounce: 100 * time.Millisecond,
		settings:       settings,
	}
	if cfg.DryRun {
		a.connect = connectFake
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func connectCEF(ctx context.Context, cef config.CEF) (host.Surface, func(), error) {
	s, err := cefhost.Connect(ctx, cef.DebugURL, cef.Tab)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func connectFake(ctx context.Context, cef config.CEF) (host.Surface, func(), error) {
	ctxlog.FromContext(ctx).Warn("Dry run: tweaks act on an in-memory host.")
	return host.NewFake(), func() {}, nil
}

// Settings returns the currently active file settings.
func (a *App) Settings() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Installation returns the installation of the running session, or nil.
func (a *App) Installation() *bootstrap.Installation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inst
}

func (a *App) setSession(inst *bootstrap.Installation, surface host.Surface) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inst, a.surface = inst, surface
}

func (a *App) tweakModules(s *config.Config) []registry.Module {
	if len(a.modules) > 0 {
		return a.modules
	}
	return coreModules(s)
}
