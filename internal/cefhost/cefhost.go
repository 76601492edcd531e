// Package cefhost implements host.Surface over the Chrome DevTools Protocol
// exposed by the Steam client's embedded browser.
package cefhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/host"
)

const (
	// DefaultDebugURL is where Steam serves DevTools when started with
	// -cef-enable-debugging.
	DefaultDebugURL = "localhost:8080"
	// SharedContextTab hosts the SteamClient global.
	SharedContextTab = "Steam Shared Context"
	// GamepadUITab is the Big Picture Mode page.
	GamepadUITab = "Steam Big Picture Mode"
)

// ErrTabNotFound is returned when no DevTools target carries the wanted title.
var ErrTabNotFound = errors.New("cefhost: tab not found")

// evaluator runs a JS function expression in the page and returns its
// JSON-encoded result.
type evaluator interface {
	evaluate(ctx context.Context, js string, args ...any) ([]byte, error)
}

type rodPage struct {
	page *rod.Page
}

func (p rodPage) evaluate(ctx context.Context, js string, args ...any) ([]byte, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	return res.Value.MarshalJSON()
}

// Surface is a host.Surface backed by one Steam CEF page.
type Surface struct {
	eval   evaluator
	ws     *cdp.WebSocket
	cancel context.CancelFunc
}

var _ host.Surface = (*Surface)(nil)

// Connect resolves the DevTools endpoint at debugURL and binds to the page
// whose title is tab.
func Connect(ctx context.Context, debugURL, tab string) (*Surface, error) {
	logger := ctxlog.FromContext(ctx)

	wsURL, err := launcher.ResolveURL(debugURL)
	if err != nil {
		return nil, fmt.Errorf("resolve devtools url %s: %w", debugURL, err)
	}

	ws, browser, cancel, err := dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to steam cef: %w", err)
	}
	s := &Surface{ws: ws, cancel: cancel}
	if err := browser.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to steam cef: %w", err)
	}

	targets, err := proto.TargetGetTargets{}.Call(browser)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}
	id, err := pickTarget(targets.TargetInfos, tab)
	if err != nil {
		s.Close()
		return nil, err
	}
	page, err := browser.PageFromTarget(id)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("attach to %q: %w", tab, err)
	}
	s.eval = rodPage{page: page}

	logger.Info("Connected to Steam CEF.", "url", wsURL, "tab", tab)
	return s, nil
}

// dial opens the DevTools websocket and wraps it in a browser that is not yet
// connected. ctx bounds only the dial and handshake; the connection lives
// until the websocket is closed.
func dial(ctx context.Context, wsURL string) (*cdp.WebSocket, *rod.Browser, context.CancelFunc, error) {
	d := &connDialer{}
	ws := &cdp.WebSocket{Dialer: d}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		if d.conn != nil {
			_ = d.conn.Close()
		}
		return nil, nil, nil, err
	}
	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	browser := rod.New().Client(cdp.New().Start(ws)).Context(bctx)
	return ws, browser, cancel, nil
}

// connDialer keeps the dialed connection so a failed handshake can close it.
// Steam serves DevTools over plain ws on localhost.
type connDialer struct {
	net.Dialer
	conn net.Conn
}

func (d *connDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	d.conn = conn
	return conn, err
}

func pickTarget(infos []*proto.TargetTargetInfo, title string) (proto.TargetTargetID, error) {
	for _, info := range infos {
		if info.Title == title {
			return info.TargetID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrTabNotFound, title)
}

// Close releases the DevTools connection. The Steam client keeps running.
func (s *Surface) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ws != nil {
		_ = s.ws.Close()
		s.ws = nil
	}
}

const supportsJS = `(path) => {
	let o = globalThis;
	for (const k of path.split('.')) {
		if (o === undefined || o === null) return false;
		o = o[k];
	}
	return typeof o === 'function';
}`

// Supports reports whether the dotted capability path resolves to a function.
func (s *Surface) Supports(ctx context.Context, c host.Capability) bool {
	raw, err := s.eval.evaluate(ctx, supportsJS, string(c))
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Capability probe failed.", "capability", c, "error", err)
		return false
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false
	}
	return ok
}

// call evaluates fn after confirming the capability exists.
func (s *Surface) call(ctx context.Context, c host.Capability, fn string, args ...any) ([]byte, error) {
	if !s.Supports(ctx, c) {
		return nil, host.Unsupported(c)
	}
	raw, err := s.eval.evaluate(ctx, fn, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	return raw, nil
}

// SetOverlayCornerMode implements host.Surface.
func (s *Surface) SetOverlayCornerMode(ctx context.Context, mode host.CornerMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid corner mode %d", int(mode))
	}
	_, err := s.call(ctx, host.CapOverlayFPSCorner,
		`(mode) => SteamClient.Settings.SetInGameOverlayShowFPSCorner(mode)`, int(mode))
	return err
}

// MinimizeWindow implements host.Surface.
func (s *Surface) MinimizeWindow(ctx context.Context) error {
	_, err := s.call(ctx, host.CapMinimizeWindow, `() => SteamClient.Window.Minimize()`)
	return err
}

// UIMode implements host.Surface.
func (s *Surface) UIMode(ctx context.Context) (host.UIMode, error) {
	raw, err := s.call(ctx, host.CapUIMode, `() => SteamClient.UI.GetUiMode()`)
	if err != nil {
		return host.UIModeUnknown, err
	}
	var mode int
	if err := json.Unmarshal(raw, &mode); err != nil {
		return host.UIModeUnknown, fmt.Errorf("decode ui mode %s: %w", raw, err)
	}
	return host.UIMode(mode), nil
}
