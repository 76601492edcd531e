// Package minimize_gamepad_ui minimizes the Steam window once when GlosSI
// starts in Big Picture mode and the user asked for it in the GlosSI
// settings. The tweak has no uninstall.
package minimize_gamepad_ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vk/steamtweaks/internal/companion"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/host"
	"github.com/vk/steamtweaks/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Name is the registry key of this tweak.
const Name = "MinimizeSteamGamepadUI"

// Module implements the registry.Module interface for this package.
type Module struct{}

func (m *Module) Name() string { return Name }

// Register installs the tweak. The install result reports whether the
// window was minimized.
func (m *Module) Register(ctx context.Context, env registry.Env) error {
	ctx = ctxlog.With(ctx, "tweak", Name)
	install := registry.InstallFunc(func(ctx context.Context) (any, error) {
		return minimize(ctx, env.Companion, env.Host)
	})
	if _, err := env.Registry.Register(ctx, Name, install, false); err != nil {
		env.Companion.Log(ctx, slog.LevelError, "Failed to install tweak.", "error", err)
		return err
	}
	return nil
}

func minimize(ctx context.Context, c *companion.Client, h host.Surface) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	var (
		mode        host.UIMode
		unsupported error
		settings    *companion.Settings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mode, err = h.UIMode(gctx)
		if errors.Is(err, host.ErrUnsupported) {
			unsupported = err
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ui mode: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if settings, err = c.GetSettings(gctx); err != nil {
			return fmt.Errorf("read glossi settings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	if unsupported != nil {
		logger.Warn("Host cannot report its UI mode, skipping.", "error", unsupported)
		return false, nil
	}

	switch {
	case !settings.MinimizeSteamGamepadUI:
		logger.Debug("Minimizing Big Picture mode is disabled in settings.", "ui_mode", mode)
		return false, nil
	case mode != host.UIModeGamepadUI:
		logger.Warn("MinimizeSteamGamepadUI is enabled but Steam is not in GamepadUI mode.", "ui_mode", mode)
		return false, nil
	}

	if !h.Supports(ctx, host.CapMinimizeWindow) {
		logger.Warn("Host cannot minimize its window.", "capability", host.CapMinimizeWindow)
		return false, nil
	}
	if err := h.MinimizeWindow(ctx); err != nil {
		return false, fmt.Errorf("minimize window: %w", err)
	}
	logger.Info("Steam Big Picture mode minimized.")
	return true, nil
}
