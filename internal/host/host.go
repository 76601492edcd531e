// Package host describes the Steam client capabilities a tweak may call.
//
// The Steam client changes its JavaScript surface between releases, so every
// capability may be missing at runtime. Implementations return ErrUnsupported
// for a missing capability and callers check Supports before acting.
package host

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned when the running host does not expose a capability.
var ErrUnsupported = errors.New("host: capability unsupported")

// Capability names a single host function.
type Capability string

const (
	CapOverlayFPSCorner Capability = "SteamClient.Settings.SetInGameOverlayShowFPSCorner"
	CapMinimizeWindow   Capability = "SteamClient.Window.Minimize"
	CapUIMode           Capability = "SteamClient.UI.GetUiMode"
)

// CornerMode is the in-game overlay FPS counter position.
type CornerMode int

const (
	CornerOff CornerMode = iota
	CornerTopLeft
	CornerTopRight
	CornerBottomRight
	CornerBottomLeft
)

// Valid reports whether m is one of the five modes Steam accepts.
func (m CornerMode) Valid() bool {
	return m >= CornerOff && m <= CornerBottomLeft
}

// UIMode is Steam's EUIMode.
type UIMode int

const (
	UIModeUnknown   UIMode = -1
	UIModeGamepadUI UIMode = 4
	UIModeDesktop   UIMode = 7
)

func (m UIMode) String() string {
	switch m {
	case UIModeGamepadUI:
		return "GamepadUI"
	case UIModeDesktop:
		return "Desktop"
	default:
		return fmt.Sprintf("UIMode(%d)", int(m))
	}
}

// Surface is the host capability surface consumed by tweaks.
type Surface interface {
	// Supports reports whether the capability is currently present.
	Supports(ctx context.Context, c Capability) bool
	// SetOverlayCornerMode moves or hides the overlay FPS counter.
	SetOverlayCornerMode(ctx context.Context, mode CornerMode) error
	// MinimizeWindow minimizes the Steam window hosting the page.
	MinimizeWindow(ctx context.Context) error
	// UIMode returns the UI mode Steam is currently in.
	UIMode(ctx context.Context) (UIMode, error)
}

// Unsupported wraps ErrUnsupported with the capability that was missing.
func Unsupported(c Capability) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, c)
}
