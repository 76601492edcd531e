package app

import (
	"context"
	"fmt"

	"github.com/vk/steamtweaks/internal/config"
)

// Config holds the process-level settings for an App instance. Non-zero
// fields override the matching values of the config file.
type Config struct {
	ConfigPath string // optional HCL file

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	CompanionURL    string
	CEFURL          string

	// DryRun replaces the Steam client with an in-memory host.
	DryRun bool
	// Once stops Run after the first companion session ends.
	Once   bool
}

func NewConfig(cfg Config) (*Config, error) {
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}

// applyOverrides copies the non-zero fields onto the file settings.
func (c *Config) applyOverrides(s *config.Config) {
	if c.CompanionURL != "" {
		s.Companion.BaseURL = c.CompanionURL
	}
	if c.CEFURL != "" {
		s.CEF.DebugURL = c.CEFURL
	}
	if c.HealthcheckPort > 0 {
		s.Health.Port = c.HealthcheckPort
	}
}

// loadSettings reads the config file and applies the overrides.
func (c *Config) loadSettings(ctx context.Context) (*config.Config, error) {
	s, err := config.Load(ctx, c.ConfigPath)
	if err != nil {
		return nil, err
	}
	c.applyOverrides(s)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
