// Package registry provides the central "glue" for the tweak system.
//
// The Registry maps tweak names to lifecycle handles for the duration of an
// injection. A handle is present if and only if its tweak is considered
// installed: Register stores the handle and then runs the tweak's install,
// and the uninstall paths run the tweak's uninstall and then drop the
// handle. Iteration happens in registration order, which makes teardown
// deterministic.
//
// The registry lock is never held while tweak code runs, so an uninstall is
// free to call back into the registry. The bootstrap root tweak relies on
// this to tear down its siblings.
package registry
