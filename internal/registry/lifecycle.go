package registry

import (
	"context"
	"fmt"
)

// Lifecycle is the contract every tweak satisfies. Install applies the
// tweak and returns whatever value the tweak wants to report.
type Lifecycle interface {
	Install(ctx context.Context) (any, error)
}

// Uninstaller is implemented by lifecycles that can revert themselves.
// Lifecycles without it are stored install-only.
type Uninstaller interface {
	Uninstall(ctx context.Context) error
}

// InstallFunc adapts a bare install function into an install-only Lifecycle.
type InstallFunc func(ctx context.Context) (any, error)

func (f InstallFunc) Install(ctx context.Context) (any, error) {
	return f(ctx)
}

// Funcs builds a reversible Lifecycle from two functions. A nil
// UninstallFn makes Uninstall a no-op.
type Funcs struct {
	InstallFn   func(ctx context.Context) (any, error)
	UninstallFn func(ctx context.Context) error
}

func (f Funcs) Install(ctx context.Context) (any, error) {
	if f.InstallFn == nil {
		return nil, nil
	}
	return f.InstallFn(ctx)
}

func (f Funcs) Uninstall(ctx context.Context) error {
	if f.UninstallFn == nil {
		return nil
	}
	return f.UninstallFn(ctx)
}

// guard runs fn and turns a panic into an error so a misbehaving tweak
// cannot take the injector down with it.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
