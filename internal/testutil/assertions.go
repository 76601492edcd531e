package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// EventuallyLogged waits until logs contains substr.
func EventuallyLogged(t *testing.T, logs fmt.Stringer, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), substr)
	}, 2*time.Second, 5*time.Millisecond, "expected log output %q was not found", substr)
}
