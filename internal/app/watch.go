package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/steamtweaks/internal/config"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/registry"
	"github.com/vk/steamtweaks/internal/supervisor"
	"vawter.tech/stopper"
)

// watchConfig reloads the settings whenever the config file changes. The
// parent directory is watched so that editors replacing the file by rename
// are seen too. The returned function stops the watcher.
func (a *App) watchConfig(ctx context.Context) (func(), error) {
	logger := ctxlog.FromContext(ctx)
	path, err := filepath.Abs(a.config.ConfigPath)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	var (
		mu        sync.Mutex
		debouncer *time.Timer
	)
	sctx := stopper.WithContext(ctx)
	sctx.Go(func(sctx *stopper.Context) error {
		defer watcher.Close()
		defer func() {
			mu.Lock()
			if debouncer != nil {
				debouncer.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-sctx.Stopping():
				return nil
			case <-sctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if debouncer != nil {
					debouncer.Stop()
				}
				debouncer = time.AfterFunc(a.reloadDebounce, func() { a.reload(ctx) })
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warn("Config watcher error.", "error", err)
			}
		}
	})

	logger.Debug("Watching config file for changes.", "path", path)
	return func() { sctx.Stop(time.Second) }, nil
}

// reload re-reads the config file and applies tweak toggles to the
// running session. A file that fails to load keeps the previous settings.
func (a *App) reload(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	next, err := a.config.loadSettings(ctx)
	if err != nil {
		logger.Error("Config reload failed, keeping previous settings.", "error", err)
		return
	}
	logger.Info("Config reloaded.", "path", a.config.ConfigPath)
	a.reconcile(ctx, next)
}

// reconcile swaps in next and installs or uninstalls the tweaks whose
// settings changed. Companion, supervisor and CEF settings take effect on
// the next session. Tweak work runs outside a.mu; reconciles are serialized
// by a.reloadMu.
func (a *App) reconcile(ctx context.Context, next *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	a.mu.Lock()
	prev := a.settings
	a.settings = next
	inst, surface := a.inst, a.surface
	a.mu.Unlock()

	if inst == nil || inst.Supervisor.State() != supervisor.Monitoring {
		return
	}
	env := inst.Env(surface)
	for _, mod := range a.tweakModules(next) {
		name := mod.Name()
		was, now := prev.Tweak(name), next.Tweak(name)
		has := inst.Registry.Has(name)
		logger := ctxlog.FromContext(ctx).With("tweak", name)

		if has && (!now.Enabled || was != now) {
			if err := inst.Registry.UninstallOne(ctx, name); err != nil {
				logger.Error("Failed to uninstall tweak on reload.", "error", err)
			} else {
				logger.Info("Tweak uninstalled on reload.")
			}
			has = false
		}
		if !now.Enabled || has {
			continue
		}
		err := mod.Register(ctx, env)
		if inst.Supervisor.State() != supervisor.Monitoring {
			// Teardown started while the tweak was installing and may have
			// missed it.
			if err := inst.Registry.UninstallOne(ctx, name); err != nil && !errors.Is(err, registry.ErrNotRegistered) {
				logger.Error("Failed to revert tweak installed during teardown.", "error", err)
			}
			logger.Info("Session ended during reload, stopping.")
			return
		}
		if err == nil {
			logger.Info("Tweak installed on reload.")
		}
	}
}
