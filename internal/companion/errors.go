package companion

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTransport indicates the companion could not be reached or answered
	// with a non-2xx status.
	ErrTransport = errors.New("companion: transport")

	// ErrTimeout indicates a request exceeded its deadline. It wraps
	// ErrTransport, so errors.Is(err, ErrTransport) also holds for timeouts.
	ErrTimeout = fmt.Errorf("%w: deadline exceeded", ErrTransport)

	// ErrDecode indicates a response body was not the expected JSON shape.
	ErrDecode = errors.New("companion: decode")
)

// RequestError records the companion operation and URL that failed.
type RequestError struct {
	Op  string
	URL string
	Err error
}

// Error returns a formatted error message
func (e *RequestError) Error() string {
	return fmt.Sprintf("companion %s %q: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *RequestError) Unwrap() error {
	return e.Err
}

// classify maps an http.Client error onto the package taxonomy.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
