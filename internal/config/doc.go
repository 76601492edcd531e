// Package config loads the injector configuration from an optional HCL
// file. Every setting has a default, so a missing file is not an error.
//
// Expressions are evaluated with an env(name, default) function:
//
//	companion {
//	  base_url      = env("GLOSSI_COMPANION_URL", "http://localhost:8756")
//	  probe_timeout = "500ms"
//	}
//
//	supervisor {
//	  discovery_interval = "5s"
//	  monitor_interval   = "666ms"
//	  fail_threshold     = 2
//	}
//
//	cef {
//	  debug_url = "localhost:8080"
//	  tab       = "Steam Shared Context"
//	}
//
//	tweak "HideFPSCounter" {
//	  enabled       = true
//	  reapply_delay = "10s"
//	}
package config
