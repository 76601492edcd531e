package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/steamtweaks/internal/ctxlog"
)

// fileRoot mirrors the blocks a config file may contain.
type fileRoot struct {
	Companion  *companionBlock  `hcl:"companion,block"`
	Supervisor *supervisorBlock `hcl:"supervisor,block"`
	CEF        *cefBlock        `hcl:"cef,block"`
	Health     *healthBlock     `hcl:"health,block"`
	Tweaks     []*tweakBlock    `hcl:"tweak,block"`
}

type companionBlock struct {
	BaseURL      *string `hcl:"base_url,optional"`
	ProbeTimeout *string `hcl:"probe_timeout,optional"`
	ForwardLogs  *bool   `hcl:"forward_logs,optional"`
}

type supervisorBlock struct {
	DiscoveryInterval *string `hcl:"discovery_interval,optional"`
	MonitorInterval   *string `hcl:"monitor_interval,optional"`
	FailThreshold     *int    `hcl:"fail_threshold,optional"`
}

type cefBlock struct {
	DebugURL *string `hcl:"debug_url,optional"`
	Tab      *string `hcl:"tab,optional"`
}

type healthBlock struct {
	Port *int `hcl:"port,optional"`
}

type tweakBlock struct {
	Name         string  `hcl:"name,label"`
	Enabled      *bool   `hcl:"enabled,optional"`
	ReapplyDelay *string `hcl:"reapply_delay,optional"`
}

// Load reads the HCL file at path on top of the defaults. An empty path or
// a file that does not exist yields the defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := Default()

	if path == "" {
		logger.Debug("No config file given, using defaults.")
		return cfg, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("Config file not found, using defaults.", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}
	if err := Parse(cfg, path, src); err != nil {
		return nil, err
	}
	logger.Debug("Config loaded.", "path", path, "tweaks", len(cfg.Tweaks))
	return cfg, nil
}

// Parse decodes HCL source onto cfg and validates the result. filename is
// used for diagnostics only.
func Parse(cfg *Config, filename string, src []byte) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	if err := root.apply(cfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return nil
}

func (r *fileRoot) apply(cfg *Config) error {
	if b := r.Companion; b != nil {
		setString(&cfg.Companion.BaseURL, b.BaseURL)
		if err := setDuration(&cfg.Companion.ProbeTimeout, b.ProbeTimeout, "companion.probe_timeout"); err != nil {
			return err
		}
		if b.ForwardLogs != nil {
			cfg.Companion.ForwardLogs = *b.ForwardLogs
		}
	}
	if b := r.Supervisor; b != nil {
		if err := setDuration(&cfg.Supervisor.DiscoveryInterval, b.DiscoveryInterval, "supervisor.discovery_interval"); err != nil {
			return err
		}
		if err := setDuration(&cfg.Supervisor.MonitorInterval, b.MonitorInterval, "supervisor.monitor_interval"); err != nil {
			return err
		}
		if b.FailThreshold != nil {
			cfg.Supervisor.FailThreshold = *b.FailThreshold
		}
	}
	if b := r.CEF; b != nil {
		setString(&cfg.CEF.DebugURL, b.DebugURL)
		setString(&cfg.CEF.Tab, b.Tab)
	}
	if b := r.Health; b != nil && b.Port != nil {
		cfg.Health.Port = *b.Port
	}
	for _, b := range r.Tweaks {
		if _, dup := cfg.Tweaks[b.Name]; dup {
			return fmt.Errorf("tweak %q configured twice", b.Name)
		}
		t := DefaultTweak()
		if b.Enabled != nil {
			t.Enabled = *b.Enabled
		}
		if err := setDuration(&t.ReapplyDelay, b.ReapplyDelay, fmt.Sprintf("tweak %q reapply_delay", b.Name)); err != nil {
			return err
		}
		cfg.Tweaks[b.Name] = t
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
