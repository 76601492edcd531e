package testutil

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/steamtweaks/internal/companion"
)

func TestCompanion(t *testing.T) {
	c := NewCompanion(t, WithFPSCorner(`"3"`), WithMinimizeGamepadUI(true))
	client := c.Client(companion.WithProbeTimeout(100*time.Millisecond), companion.WithLogForwarding(true))
	ctx := context.Background()

	steam, err := client.GetSteamSettings(ctx)
	require.NoError(t, err)
	corner, err := steam.OverlayFPSCorner()
	require.NoError(t, err)
	assert.Equal(t, 3, corner)

	settings, err := client.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.MinimizeSteamGamepadUI)

	client.Log(ctx, slog.LevelWarn, "hello")
	require.Eventually(t, func() bool { return len(c.Logs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, LogEntry{Level: "warn", Message: "hello"}, c.Logs()[0])

	assert.True(t, client.Liveness(ctx))
	c.SetAlive(false)
	assert.False(t, client.Liveness(ctx))
	assert.Equal(t, 2, c.Hits(companion.RunningPath))
}
