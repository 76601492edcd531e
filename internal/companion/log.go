package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vk/steamtweaks/internal/ctxlog"
)

type logEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Log is the diagnostic sink for tweak code. Entries always go to the
// context logger; with log forwarding enabled they are also posted to the
// companion so they land in GlosSITarget's log file.
func (c *Client) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	ctxlog.FromContext(ctx).Log(ctx, level, msg, args...)
	if !c.forwardLogs {
		return
	}
	entry := logEntry{Level: levelName(level), Message: formatMessage(msg, args...)}
	go c.forward(context.WithoutCancel(ctx), entry)
}

func (c *Client) forward(ctx context.Context, entry logEntry) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	url := c.baseURL + LogPath
	body, err := json.Marshal(entry)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Forwarding log entry to companion failed.", "error", classify(err))
		return
	}
	resp.Body.Close()
}

// formatMessage flattens slog-style key/value pairs into a single line.
func formatMessage(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}

// levelName maps slog levels onto the level names the companion's /log
// endpoint understands.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
