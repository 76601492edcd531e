package app

import (
	"github.com/vk/steamtweaks/internal/config"
	"github.com/vk/steamtweaks/internal/registry"
	"github.com/vk/steamtweaks/modules/hide_fps_counter"
	"github.com/vk/steamtweaks/modules/minimize_gamepad_ui"
)

// coreModules is the definitive list of tweaks compiled into the
// steamtweaks binary, in installation order.
func coreModules(s *config.Config) []registry.Module {
	return []registry.Module{
		&hide_fps_counter.Module{ReapplyDelay: s.Tweak(hide_fps_counter.Name).ReapplyDelay},
		&minimize_gamepad_ui.Module{},
	}
}
