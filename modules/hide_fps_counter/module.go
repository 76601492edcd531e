// Package hide_fps_counter hides Steam's in-game overlay FPS counter while
// GlosSI is running and restores the user's corner setting afterwards.
package hide_fps_counter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vk/steamtweaks/internal/companion"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/host"
	"github.com/vk/steamtweaks/internal/reapply"
	"github.com/vk/steamtweaks/internal/registry"
)

// Name is the registry key of this tweak.
const Name = "HideFPSCounter"

// Module implements the registry.Module interface for this package.
type Module struct {
	// ReapplyDelay is how long to wait before hiding the counter a second
	// time. Zero means reapply.DefaultDelay.
	ReapplyDelay time.Duration
}

func (m *Module) Name() string { return Name }

// Register installs the tweak into env.Registry.
func (m *Module) Register(ctx context.Context, env registry.Env) error {
	ctx = ctxlog.With(ctx, "tweak", Name)
	delay := m.ReapplyDelay
	if delay <= 0 {
		delay = reapply.DefaultDelay
	}
	t := &tweak{companion: env.Companion, host: env.Host, delay: delay}
	if _, err := env.Registry.Register(ctx, Name, t, false); err != nil {
		env.Companion.Log(ctx, slog.LevelError, "Failed to install tweak.", "error", err)
		return err
	}
	return nil
}

type tweak struct {
	companion *companion.Client
	host      host.Surface
	delay     time.Duration

	mu          sync.Mutex
	applied     bool
	uninstalled bool
	original    host.CornerMode
	pending     *reapply.Pending
}

// Install records the current corner, hides the counter and schedules the
// corrective re-application. It returns the original corner mode.
func (t *tweak) Install(ctx context.Context) (any, error) {
	logger := ctxlog.FromContext(ctx)
	if !t.host.Supports(ctx, host.CapOverlayFPSCorner) {
		logger.Warn("Host cannot change the FPS counter corner, tweak is inactive.", "capability", host.CapOverlayFPSCorner)
		return nil, nil
	}

	steam, err := t.companion.GetSteamSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read steam settings: %w", err)
	}
	raw, err := steam.OverlayFPSCorner()
	if err != nil {
		return nil, err
	}
	original := host.CornerMode(raw)
	if !original.Valid() {
		return nil, fmt.Errorf("%w: unknown FPS corner %d", companion.ErrDecode, raw)
	}

	// An uninstall that ran while the settings were being read owns the
	// corner from here on.
	t.mu.Lock()
	if t.uninstalled {
		t.mu.Unlock()
		logger.Debug("Tweak uninstalled during install, leaving FPS counter untouched.")
		return nil, nil
	}
	t.applied = true
	t.original = original
	t.mu.Unlock()

	if err := t.host.SetOverlayCornerMode(ctx, host.CornerOff); err != nil {
		return nil, fmt.Errorf("hide FPS counter: %w", err)
	}

	t.mu.Lock()
	if t.uninstalled {
		t.mu.Unlock()
		// The concurrent restore may have landed before the hide did.
		if err := t.host.SetOverlayCornerMode(ctx, original); err != nil {
			return nil, fmt.Errorf("restore FPS corner %d: %w", int(original), err)
		}
		return original, nil
	}
	t.pending = reapply.After(ctx, t.delay, func(ctx context.Context) error {
		return t.host.SetOverlayCornerMode(ctx, host.CornerOff)
	})
	t.mu.Unlock()

	logger.Debug("FPS counter hidden.", "original_corner", int(original))
	return original, nil
}

// Uninstall cancels the pending re-application and restores the corner.
func (t *tweak) Uninstall(ctx context.Context) error {
	t.mu.Lock()
	applied, original, pending := t.applied, t.original, t.pending
	t.applied, t.pending = false, nil
	t.uninstalled = true
	t.mu.Unlock()

	if err := pending.Stop(ctx); err != nil {
		return fmt.Errorf("wait for re-application: %w", err)
	}
	if !applied {
		return nil
	}
	if err := t.host.SetOverlayCornerMode(ctx, original); err != nil {
		return fmt.Errorf("restore FPS corner %d: %w", int(original), err)
	}
	ctxlog.FromContext(ctx).Debug("FPS counter corner restored.", "corner", int(original))
	return nil
}
