package companion

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const steamSettingsBody = `{
	"UserLocalConfigStore": {
		"system": {
			"InGameOverlayShowFPSCorner": "2",
			"EnableGameOverlay": "1"
		},
		"friends": {"SignIntoFriends": "1"}
	}
}`

const settingsBody = `{
	"version": 1,
	"extendedLogging": true,
	"minimizeSteamGamepadUI": true,
	"controller": {"maxControllers": 4, "emulateDS4": false, "allowDesktopConfig": true},
	"window": {"windowMode": false, "maxFps": 60},
	"launch": {"launch": true, "launcherProcesses": ["EpicGamesLauncher.exe"]}
}`

func newCompanion(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func body(s string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/json")
		_, _ = w.Write([]byte(s))
	}
}

func TestGetSteamSettings(t *testing.T) {
	t.Parallel()

	t.Run("decodes UserLocalConfigStore", func(t *testing.T) {
		srv := newCompanion(t, map[string]http.HandlerFunc{SteamSettingsPath: body(steamSettingsBody)})
		c := New(srv.URL)

		cfg, err := c.GetSteamSettings(context.Background())
		require.NoError(t, err)

		corner, err := cfg.OverlayFPSCorner()
		require.NoError(t, err)
		assert.Equal(t, 2, corner)
		assert.Contains(t, cfg.Sections, "friends")
	})

	t.Run("missing envelope is a decode error", func(t *testing.T) {
		srv := newCompanion(t, map[string]http.HandlerFunc{SteamSettingsPath: body(`{"other": {}}`)})
		_, err := New(srv.URL).GetSteamSettings(context.Background())
		require.ErrorIs(t, err, ErrDecode)

		var reqErr *RequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, "steam_settings", reqErr.Op)
	})

	t.Run("malformed json is a decode error", func(t *testing.T) {
		srv := newCompanion(t, map[string]http.HandlerFunc{SteamSettingsPath: body(`{"UserLocalConfigStore": `)})
		_, err := New(srv.URL).GetSteamSettings(context.Background())
		require.ErrorIs(t, err, ErrDecode)
		assert.NotErrorIs(t, err, ErrTransport)
	})

	t.Run("non-2xx is a transport error", func(t *testing.T) {
		srv := newCompanion(t, map[string]http.HandlerFunc{SteamSettingsPath: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}})
		_, err := New(srv.URL).GetSteamSettings(context.Background())
		require.ErrorIs(t, err, ErrTransport)
		assert.NotErrorIs(t, err, ErrDecode)
	})

	t.Run("unreachable is a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(url).GetSteamSettings(context.Background())
		require.ErrorIs(t, err, ErrTransport)
	})
}

func TestOverlayFPSCorner(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		raw       string
		want      int
		expectErr bool
	}{
		{name: "string value", raw: `{"system": {"InGameOverlayShowFPSCorner": "3"}}`, want: 3},
		{name: "numeric value", raw: `{"system": {"InGameOverlayShowFPSCorner": 1}}`, want: 1},
		{name: "missing key", raw: `{"system": {}}`, expectErr: true},
		{name: "missing system", raw: `{}`, expectErr: true},
		{name: "garbage string", raw: `{"system": {"InGameOverlayShowFPSCorner": "left"}}`, expectErr: true},
		{name: "wrong type", raw: `{"system": {"InGameOverlayShowFPSCorner": true}}`, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg SteamConfig
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &cfg))

			got, err := cfg.OverlayFPSCorner()
			if tc.expectErr {
				require.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetSettings(t *testing.T) {
	t.Parallel()

	srv := newCompanion(t, map[string]http.HandlerFunc{SettingsPath: body(settingsBody)})
	s, err := New(srv.URL + "/").GetSettings(context.Background())
	require.NoError(t, err)

	assert.True(t, s.MinimizeSteamGamepadUI)
	assert.True(t, s.ExtendedLogging)
	assert.Equal(t, 4, s.Controller.MaxControllers)
	require.NotNil(t, s.Window.MaxFPS)
	assert.Equal(t, 60, *s.Window.MaxFPS)
	assert.Equal(t, []string{"EpicGamesLauncher.exe"}, s.Launch.LauncherProcesses)
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	t.Run("2xx is alive", func(t *testing.T) {
		srv := newCompanion(t, map[string]http.HandlerFunc{RunningPath: body(`{"state":{"running":true}}`)})
		assert.True(t, New(srv.URL).Liveness(context.Background()))
	})

	t.Run("non-2xx is not alive", func(t *testing.T) {
		srv := newCompanion(t, map[string]http.HandlerFunc{RunningPath: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}})
		assert.False(t, New(srv.URL).Liveness(context.Background()))
	})

	t.Run("refused connection is not alive", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		assert.False(t, New(url).Liveness(context.Background()))
	})
}

// TestProbe_Deadline verifies a hanging companion is reported dead once the
// deadline elapses, neither immediately nor after an unbounded wait.
func TestProbe_Deadline(t *testing.T) {
	t.Parallel()

	srv := newCompanion(t, map[string]http.HandlerFunc{RunningPath: func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}})

	start := time.Now()
	err := Probe(context.Background(), srv.Client(), srv.URL+RunningPath, 500*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, ErrTransport)
	assert.GreaterOrEqual(t, elapsed, 450*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)

	start = time.Now()
	alive := New(srv.URL, WithProbeTimeout(500*time.Millisecond)).Liveness(context.Background())
	assert.False(t, alive)
	assert.GreaterOrEqual(t, time.Since(start), 450*time.Millisecond)
}

func TestWaitUntilAlive(t *testing.T) {
	t.Parallel()

	t.Run("returns once the companion answers", func(t *testing.T) {
		calls := make(chan struct{}, 10)
		srv := newCompanion(t, map[string]http.HandlerFunc{RunningPath: func(w http.ResponseWriter, r *http.Request) {
			calls <- struct{}{}
			if len(calls) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, New(srv.URL).WaitUntilAlive(ctx, 10*time.Millisecond))
		assert.GreaterOrEqual(t, len(calls), 3)
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		srv := newCompanion(t, map[string]http.HandlerFunc{RunningPath: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := New(srv.URL).WaitUntilAlive(ctx, 20*time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLog_Forwarding(t *testing.T) {
	t.Parallel()

	received := make(chan logEntry, 1)
	srv := newCompanion(t, map[string]http.HandlerFunc{LogPath: func(w http.ResponseWriter, r *http.Request) {
		var e logEntry
		if err := json.NewDecoder(r.Body).Decode(&e); err == nil {
			received <- e
		}
	}})

	c := New(srv.URL, WithLogForwarding(true))
	c.Log(context.Background(), slog.LevelWarn, "fps corner not restored", "tweak", "HideFPSCounter")

	select {
	case e := <-received:
		assert.Equal(t, "warn", e.Level)
		assert.Equal(t, "fps corner not restored tweak=HideFPSCounter", e.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("log entry was not forwarded")
	}
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "debug", levelName(slog.LevelDebug))
	assert.Equal(t, "info", levelName(slog.LevelInfo))
	assert.Equal(t, "warn", levelName(slog.LevelWarn))
	assert.Equal(t, "error", levelName(slog.LevelError))
	assert.Equal(t, "error", levelName(slog.LevelError+4))
}
