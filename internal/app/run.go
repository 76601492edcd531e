package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vk/steamtweaks/internal/bootstrap"
	"github.com/vk/steamtweaks/internal/companion"
	"github.com/vk/steamtweaks/internal/config"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/host"
	"github.com/vk/steamtweaks/internal/registry"
	"github.com/vk/steamtweaks/internal/supervisor"
)

// hostConnectAttempts bounds how often the CEF connection is retried per
// session before giving up and waiting for the next companion session.
const hostConnectAttempts = 5

// Run executes the main application loop until ctx ends. Each iteration is
// one companion session: discovery, bootstrap, tweak installation and
// supervision. On return every tweak has been reverted.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger
	logger.Debug("App.Run method started.")

	a.startHealthServer(ctx)
	defer a.closeHealthServer(ctx)

	if a.config.ConfigPath != "" {
		stop, err := a.watchConfig(ctx)
		if err != nil {
			logger.Warn("Config hot reload disabled.", "path", a.config.ConfigPath, "error", err)
		} else {
			defer stop()
		}
	}

	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			logger.Debug("App.Run method finished.")
			return nil
		}
		if err != nil {
			if a.config.Once {
				return err
			}
			logger.Error("Session failed, waiting for the next one.", "error", err)
		}
		if a.config.Once {
			return nil
		}
	}
}

// session runs one companion session to completion.
func (a *App) session(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	s := a.Settings()

	probe := companion.New(s.Companion.BaseURL, companion.WithProbeTimeout(s.Companion.ProbeTimeout))
	logger.Info("Waiting for GlosSITarget...", "url", probe.BaseURL(), "interval", s.Supervisor.DiscoveryInterval)
	if err := probe.WaitUntilAlive(ctx, s.Supervisor.DiscoveryInterval); err != nil {
		return fmt.Errorf("companion discovery: %w", err)
	}

	surface, release, err := a.connectHost(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to bind host: %w", err)
	}
	defer release()

	inst, err := bootstrap.EnsureInstalled(ctx, a.scope, a.deps(s))
	if err != nil {
		return err
	}
	a.setSession(inst, surface)
	defer a.setSession(nil, nil)

	sctx := ctxlog.With(ctx, "session", inst.Companion.BaseURL())
	a.installTweaks(sctx, inst, surface, s)

	select {
	case <-inst.Supervisor.Done():
	case <-ctx.Done():
	}
	// The supervisor also ends when ctx does, without reverting anything.
	if ctx.Err() == nil {
		logger.Info("GlosSITarget is gone, tweaks reverted.")
	} else {
		logger.Info("Shutting down, reverting tweaks.")
		revert(context.WithoutCancel(ctx), inst)
	}
	inst.Supervisor.Wait()
	return nil
}

// revert uninstalls the root tweak. A root already removed by supervisor
// teardown counts as reverted.
func revert(ctx context.Context, inst *bootstrap.Installation) {
	err := inst.Uninstall(ctx)
	if err != nil && !errors.Is(err, registry.ErrNotRegistered) {
		ctxlog.FromContext(ctx).Error("Some tweaks failed to revert.", "error", err)
	}
}

func (a *App) connectHost(ctx context.Context, s *config.Config) (host.Surface, func(), error) {
	var (
		surface host.Surface
		release func()
	)
	op := func() error {
		h, r, err := a.connect(ctx, s.CEF)
		if err != nil {
			return err
		}
		surface, release = h, r
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.Supervisor.DiscoveryInterval), hostConnectAttempts),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		ctxlog.FromContext(ctx).Debug("Steam CEF not reachable yet.", "url", s.CEF.DebugURL, "retry_in", next, "error", err)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, nil, err
	}
	return surface, release, nil
}

func (a *App) deps(s *config.Config) bootstrap.Deps {
	return bootstrap.Deps{
		CompanionURL: s.Companion.BaseURL,
		CompanionOptions: []companion.Option{
			companion.WithProbeTimeout(s.Companion.ProbeTimeout),
			companion.WithLogForwarding(s.Companion.ForwardLogs),
		},
		SupervisorOptions: []supervisor.Option{
			supervisor.WithInterval(s.Supervisor.MonitorInterval),
			supervisor.WithFailThreshold(s.Supervisor.FailThreshold),
		},
		Metrics: a.metrics,
	}
}

// installTweaks registers every enabled module. Modules log their own
// install failures, so an error here never stops the others.
func (a *App) installTweaks(ctx context.Context, inst *bootstrap.Installation, surface host.Surface, s *config.Config) {
	env := inst.Env(surface)
	installed := 0
	for _, mod := range a.tweakModules(s) {
		if !s.Tweak(mod.Name()).Enabled {
			ctxlog.FromContext(ctx).Info("Tweak disabled by config.", "tweak", mod.Name())
			continue
		}
		if err := mod.Register(ctx, env); err == nil {
			installed++
		}
	}
	inst.Companion.Log(ctx, slog.LevelInfo, "Tweaks installed.", "count", installed, "registered", inst.Registry.Names())
}
