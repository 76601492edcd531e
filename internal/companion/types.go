package companion

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// SteamConfig is the UserLocalConfigStore section of Steam's localconfig,
// as served by the companion's /steam_settings endpoint.
type SteamConfig struct {
	System   map[string]any             `json:"system"`
	Sections map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the typed system section and every other section raw.
func (c *SteamConfig) UnmarshalJSON(data []byte) error {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return err
	}
	c.Sections = sections
	c.System = nil
	if raw, ok := sections["system"]; ok {
		if err := json.Unmarshal(raw, &c.System); err != nil {
			return fmt.Errorf("system section: %w", err)
		}
	}
	return nil
}

// OverlayFPSCorner returns system.InGameOverlayShowFPSCorner. Steam stores
// VDF values as strings, so both "2" and 2 are accepted.
func (c *SteamConfig) OverlayFPSCorner() (int, error) {
	v, ok := c.System["InGameOverlayShowFPSCorner"]
	if !ok {
		return 0, fmt.Errorf("%w: system.InGameOverlayShowFPSCorner missing", ErrDecode)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%w: system.InGameOverlayShowFPSCorner %q: %v", ErrDecode, n, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: system.InGameOverlayShowFPSCorner has type %T", ErrDecode, v)
	}
}

// steamSettingsEnvelope is the wire shape of /steam_settings.
type steamSettingsEnvelope struct {
	UserLocalConfigStore *SteamConfig `json:"UserLocalConfigStore"`
}

// Settings mirrors the GlosSI target settings served on /settings.
type Settings struct {
	Version                int    `json:"version"`
	Name                   string `json:"name,omitempty"`
	Icon                   string `json:"icon,omitempty"`
	ExtendedLogging        bool   `json:"extendedLogging"`
	SnapshotNotify         bool   `json:"snapshotNotify"`
	IgnoreEGS              bool   `json:"ignoreEGS"`
	KillEGS                bool   `json:"killEGS"`
	GlobalModeGameID       string `json:"globalModeGameId"`
	GlobalModeUseGamepadUI bool   `json:"globalModeUseGamepadUI"`
	StandaloneModeGameID   string `json:"standaloneModeGameId"`
	StandaloneUseGamepadUI bool   `json:"standaloneUseGamepadUI"`
	MinimizeSteamGamepadUI bool   `json:"minimizeSteamGamepadUI"`
	SteamPath              string `json:"steamPath"`
	SteamUserID            string `json:"steamUserId"`
	SteamgridAPIKey        string `json:"steamgridApiKey"`

	Controller ControllerSettings `json:"controller"`
	Devices    DeviceSettings     `json:"devices"`
	Launch     LaunchSettings     `json:"launch"`
	Window     WindowSettings     `json:"window"`
}

type ControllerSettings struct {
	AllowDesktopConfig bool `json:"allowDesktopConfig"`
	EmulateDS4         bool `json:"emulateDS4"`
	MaxControllers     int  `json:"maxControllers"`
}

type DeviceSettings struct {
	HideDevices   bool `json:"hideDevices"`
	RealDeviceIDs bool `json:"realDeviceIds"`
}

type LaunchSettings struct {
	CloseOnExit       bool     `json:"closeOnExit"`
	IgnoreLauncher    bool     `json:"ignoreLauncher"`
	KillLauncher      bool     `json:"killLauncher"`
	Launch            bool     `json:"launch"`
	LaunchAppArgs     string   `json:"launchAppArgs,omitempty"`
	LaunchPath        string   `json:"launchPath,omitempty"`
	LauncherProcesses []string `json:"launcherProcesses"`
	WaitForChildProcs bool     `json:"waitForChildProcs"`
}

type WindowSettings struct {
	DisableGlosSIOverlay bool     `json:"disableGlosSIOverlay"`
	DisableOverlay       bool     `json:"disableOverlay"`
	HideAltTab           bool     `json:"hideAltTab"`
	MaxFPS               *int     `json:"maxFps,omitempty"`
	Scale                *float64 `json:"scale,omitempty"`
	WindowMode           bool     `json:"windowMode"`
}
