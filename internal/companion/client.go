package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vk/steamtweaks/internal/ctxlog"
)

const (
	// DefaultBaseURL is where GlosSITarget serves its HTTP API.
	DefaultBaseURL = "http://localhost:8756"
	// DefaultProbeTimeout bounds a single liveness probe.
	DefaultProbeTimeout = 500 * time.Millisecond

	SteamSettingsPath = "/steam_settings"
	SettingsPath      = "/settings"
	RunningPath       = "/running"
	LogPath           = "/log"
)

// Client is the companion session handed to every tweak.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	probeTimeout time.Duration
	forwardLogs  bool
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the http.Client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithProbeTimeout sets the liveness probe deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.probeTimeout = d
	}
}

// WithLogForwarding makes Log also POST entries to the companion's /log endpoint.
func WithLogForwarding(enabled bool) Option {
	return func(c *Client) {
		c.forwardLogs = enabled
	}
}

// New creates a Client for the companion at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{},
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = DefaultProbeTimeout
	}
	return c
}

// BaseURL returns the companion base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetSteamSettings fetches the user's Steam localconfig.
func (c *Client) GetSteamSettings(ctx context.Context) (*SteamConfig, error) {
	var env steamSettingsEnvelope
	if err := c.getJSON(ctx, "steam_settings", SteamSettingsPath, &env); err != nil {
		return nil, err
	}
	if env.UserLocalConfigStore == nil {
		return nil, &RequestError{
			Op:  "steam_settings",
			URL: c.baseURL + SteamSettingsPath,
			Err: fmt.Errorf("%w: UserLocalConfigStore missing", ErrDecode),
		}
	}
	return env.UserLocalConfigStore, nil
}

// GetSettings fetches the GlosSI target settings.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.getJSON(ctx, "settings", SettingsPath, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Liveness reports whether the companion answers its /running endpoint
// within the probe timeout.
func (c *Client) Liveness(ctx context.Context) bool {
	if err := Probe(ctx, c.httpClient, c.baseURL+RunningPath, c.probeTimeout); err != nil {
		ctxlog.FromContext(ctx).Debug("Companion liveness probe failed.", "error", err)
		return false
	}
	return true
}

// WaitUntilAlive polls Liveness every interval until it succeeds or ctx ends.
func (c *Client) WaitUntilAlive(ctx context.Context, interval time.Duration) error {
	logger := ctxlog.FromContext(ctx)
	op := func() error {
		if c.Liveness(ctx) {
			return nil
		}
		return fmt.Errorf("%w: %s not answering", ErrTransport, c.baseURL+RunningPath)
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	return backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		logger.Debug("Companion not reachable yet.", "retry_in", next, "error", err)
	})
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &RequestError{Op: op, URL: url, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, URL: url, Err: classify(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Op: op, URL: url, Err: fmt.Errorf("%w: unexpected status %s", ErrTransport, resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Op: op, URL: url, Err: classify(err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RequestError{Op: op, URL: url, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}
	return nil
}
