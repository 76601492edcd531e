package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict matches a *ConflictError.
	ErrConflict = errors.New("registry: tweak already installed")

	// ErrNotRegistered indicates an uninstall for a name the registry does not hold.
	ErrNotRegistered = errors.New("registry: tweak not registered")

	// ErrEmptyName indicates a registration without a tweak name.
	ErrEmptyName = errors.New("registry: tweak name must not be empty")
)

// ConflictError is returned by Register when the name is already taken and
// force was not set.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tweak %s is already installed", e.Name)
}

// Is makes errors.Is(err, ErrConflict) hold.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// InstallError wraps the failure of a tweak's install.
type InstallError struct {
	Name string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("tweak %s failed to install: %v", e.Name, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// UninstallError wraps the failure of a tweak's uninstall.
type UninstallError struct {
	Name string
	Err  error
}

func (e *UninstallError) Error() string {
	return fmt.Sprintf("tweak %s failed to uninstall: %v", e.Name, e.Err)
}

func (e *UninstallError) Unwrap() error {
	return e.Err
}
