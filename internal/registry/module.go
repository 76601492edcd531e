package registry

import (
	"context"

	"github.com/vk/steamtweaks/internal/companion"
	"github.com/vk/steamtweaks/internal/host"
)

// Env is what a tweak module receives when it is loaded: the registry to
// register itself with, the companion session and the host surface.
type Env struct {
	Registry  *Registry
	Companion *companion.Client
	Host      host.Surface
}

// Module is the interface that all compiled-in tweaks implement.
type Module interface {
	// Name is the registry key the module registers under.
	Name() string
	// Register registers the module's tweak with env.Registry. Install
	// failures are logged by the module and returned to the caller.
	Register(ctx context.Context, env Env) error
}
