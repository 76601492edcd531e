package companion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Probe issues a GET against url and returns nil on any 2xx response. The
// request is bound to a deadline of timeout; the deadline is released as soon
// as the probe returns, whichever way it ends.
func Probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &RequestError{Op: "probe", URL: url, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &RequestError{Op: "probe", URL: url, Err: classify(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Op: "probe", URL: url, Err: fmt.Errorf("%w: unexpected status %s", ErrTransport, resp.Status)}
	}
	return nil
}
