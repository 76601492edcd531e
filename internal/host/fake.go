package host

import (
	"context"
	"sync"
)

// Fake is an in-memory Surface for tests and dry runs. Capabilities absent
// from Caps behave as missing.
type Fake struct {
	mu sync.Mutex

	Caps      map[Capability]bool
	Corner    CornerMode
	Mode      UIMode
	Minimized int
	Calls     []Capability
}

// NewFake returns a Fake exposing every capability.
func NewFake() *Fake {
	return &Fake{
		Caps: map[Capability]bool{
			CapOverlayFPSCorner: true,
			CapMinimizeWindow:   true,
			CapUIMode:           true,
		},
		Mode: UIModeDesktop,
	}
}

func (f *Fake) Supports(_ context.Context, c Capability) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Caps[c]
}

func (f *Fake) SetOverlayCornerMode(_ context.Context, mode CornerMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Caps[CapOverlayFPSCorner] {
		return Unsupported(CapOverlayFPSCorner)
	}
	f.Corner = mode
	f.Calls = append(f.Calls, CapOverlayFPSCorner)
	return nil
}

func (f *Fake) MinimizeWindow(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Caps[CapMinimizeWindow] {
		return Unsupported(CapMinimizeWindow)
	}
	f.Minimized++
	f.Calls = append(f.Calls, CapMinimizeWindow)
	return nil
}

func (f *Fake) UIMode(_ context.Context) (UIMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Caps[CapUIMode] {
		return UIModeUnknown, Unsupported(CapUIMode)
	}
	f.Calls = append(f.Calls, CapUIMode)
	return f.Mode, nil
}

// CornerMode returns the last corner mode set.
func (f *Fake) CornerMode() CornerMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Corner
}

// CallCount returns how many times c was invoked successfully.
func (f *Fake) CallCount(c Capability) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.Calls {
		if call == c {
			n++
		}
	}
	return n
}

// SetSupported toggles a capability.
func (f *Fake) SetSupported(c Capability, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Caps[c] = ok
}
