// Package companion is the typed client for the GlosSITarget companion
// service. Tweaks use it to read Steam and GlosSI settings and to log; the
// supervisor uses its liveness probe to decide whether the host environment
// the tweaks depend on still exists.
//
// Liveness never returns an error: a missing companion is an expected state
// handled by the supervisor's failure threshold, so transport and timeout
// failures are folded into a boolean here.
package companion
