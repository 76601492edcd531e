package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/steamtweaks/internal/cefhost"
	"github.com/vk/steamtweaks/internal/companion"
	"github.com/vk/steamtweaks/internal/reapply"
	"github.com/vk/steamtweaks/internal/supervisor"
)

// Config is the fully resolved injector configuration.
type Config struct {
	Companion  Companion
	Supervisor Supervisor
	CEF        CEF
	Health     Health
	Tweaks     map[string]Tweak
}

// Companion configures the GlosSITarget HTTP client.
type Companion struct {
	BaseURL      string
	ProbeTimeout time.Duration
	ForwardLogs  bool
}

// Supervisor configures discovery and liveness polling.
type Supervisor struct {
	DiscoveryInterval time.Duration
	MonitorInterval   time.Duration
	FailThreshold     int
}

// CEF configures the Chrome DevTools connection to the Steam client.
type CEF struct {
	DebugURL string
	Tab      string
}

// Health configures the health and metrics HTTP server. Port 0 disables it.
type Health struct {
	Port int
}

// Tweak holds per-tweak settings.
type Tweak struct {
	Enabled      bool
	ReapplyDelay time.Duration
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Companion: Companion{
			BaseURL:      companion.DefaultBaseURL,
			ProbeTimeout: companion.DefaultProbeTimeout,
		},
		Supervisor: Supervisor{
			DiscoveryInterval: supervisor.DefaultDiscoveryInterval,
			MonitorInterval:   supervisor.DefaultMonitorInterval,
			FailThreshold:     supervisor.DefaultFailThreshold,
		},
		CEF: CEF{
			DebugURL: cefhost.DefaultDebugURL,
			Tab:      cefhost.SharedContextTab,
		},
		Tweaks: map[string]Tweak{},
	}
}

// DefaultTweak is the setting for a tweak the file does not mention.
func DefaultTweak() Tweak {
	return Tweak{Enabled: true, ReapplyDelay: reapply.DefaultDelay}
}

// Tweak returns the settings for the named tweak.
func (c *Config) Tweak(name string) Tweak {
	if t, ok := c.Tweaks[name]; ok {
		return t
	}
	return DefaultTweak()
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Companion.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("companion.base_url %q is not an absolute URL", c.Companion.BaseURL))
	}
	if c.Companion.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("companion.probe_timeout must be positive"))
	}
	if c.Supervisor.DiscoveryInterval <= 0 {
		errs = append(errs, errors.New("supervisor.discovery_interval must be positive"))
	}
	if c.Supervisor.MonitorInterval <= 0 {
		errs = append(errs, errors.New("supervisor.monitor_interval must be positive"))
	}
	if c.Supervisor.FailThreshold < 1 {
		errs = append(errs, errors.New("supervisor.fail_threshold must be at least 1"))
	}
	if c.CEF.DebugURL == "" {
		errs = append(errs, errors.New("cef.debug_url must not be empty"))
	}
	if c.CEF.Tab == "" {
		errs = append(errs, errors.New("cef.tab must not be empty"))
	}
	if c.Health.Port < 0 || c.Health.Port > 65535 {
		errs = append(errs, fmt.Errorf("health.port %d out of range", c.Health.Port))
	}
	for name, t := range c.Tweaks {
		if t.ReapplyDelay < 0 {
			errs = append(errs, fmt.Errorf("tweak %q: reapply_delay must not be negative", name))
		}
	}
	return errors.Join(errs...)
}
