// Package testutil holds shared test fixtures: a fake GlosSITarget companion
// and log assertions.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vk/steamtweaks/internal/companion"
)

// LogEntry is one record received on the companion's /log endpoint.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Companion is a fake GlosSITarget HTTP service. While alive it answers
// /running, /steam_settings, /settings and /log; otherwise every request
// gets 503.
type Companion struct {
	*httptest.Server

	alive atomic.Bool

	mu       sync.Mutex
	corner   string
	minimize bool
	logs     []LogEntry
	hits     map[string]int
	gates    map[string]<-chan struct{}
}

// CompanionOption configures a Companion.
type CompanionOption func(*Companion)

// WithFPSCorner sets the raw JSON value served as
// system.InGameOverlayShowFPSCorner, e.g. `"2"` or `2`.
func WithFPSCorner(raw string) CompanionOption {
	return func(c *Companion) { c.corner = raw }
}

// WithMinimizeGamepadUI sets the minimizeSteamGamepadUI GlosSI setting.
func WithMinimizeGamepadUI(enabled bool) CompanionOption {
	return func(c *Companion) { c.minimize = enabled }
}

// WithGate holds requests to path until release is closed. The request is
// counted in Hits before it blocks.
func WithGate(path string, release <-chan struct{}) CompanionOption {
	return func(c *Companion) { c.gates[path] = release }
}

// NewCompanion starts a live fake companion that is closed with the test.
func NewCompanion(t *testing.T, opts ...CompanionOption) *Companion {
	t.Helper()
	c := &Companion{corner: `"0"`, hits: map[string]int{}, gates: map[string]<-chan struct{}{}}
	for _, opt := range opts {
		opt(c)
	}
	c.alive.Store(true)
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Close)
	return c
}

func (c *Companion) serve(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.hits[r.URL.Path]++
	corner, minimize := c.corner, c.minimize
	gate := c.gates[r.URL.Path]
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if !c.alive.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case companion.RunningPath:
		fmt.Fprint(w, `{"state":{"running":true}}`)
	case companion.SteamSettingsPath:
		fmt.Fprintf(w, `{"UserLocalConfigStore":{"system":{"InGameOverlayShowFPSCorner":%s}}}`, corner)
	case companion.SettingsPath:
		fmt.Fprintf(w, `{"version":1,"minimizeSteamGamepadUI":%t}`, minimize)
	case companion.LogPath:
		var entry LogEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.logs = append(c.logs, entry)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

// SetAlive switches the companion between answering and failing.
func (c *Companion) SetAlive(alive bool) {
	c.alive.Store(alive)
}

// Client returns a companion client pointed at the fake.
func (c *Companion) Client(opts ...companion.Option) *companion.Client {
	return companion.New(c.URL, opts...)
}

// Logs returns the entries posted to /log so far.
func (c *Companion) Logs() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEntry(nil), c.logs...)
}

// Hits returns how many requests path has received.
func (c *Companion) Hits(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}
