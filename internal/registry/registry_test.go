package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/steamtweaks/internal/metrics"
)

// countingTweak records how often each lifecycle step ran.
type countingTweak struct {
	mu           sync.Mutex
	installs     int
	uninstalls   int
	installVal   any
	installErr   error
	uninstallErr error
	onUninstall  func(ctx context.Context)
}

func (c *countingTweak) Install(ctx context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installs++
	return c.installVal, c.installErr
}

func (c *countingTweak) Uninstall(ctx context.Context) error {
	c.mu.Lock()
	c.uninstalls++
	hook := c.onUninstall
	c.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return c.uninstallErr
}

func (c *countingTweak) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installs, c.uninstalls
}

func TestRegister_ReturnsInstallResult(t *testing.T) {
	// --- Arrange ---
	r := New()
	a := &countingTweak{installVal: 42}

	// --- Act ---
	v, err := r.Register(context.Background(), "A", a, false)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, r.Has("A"))

	require.NoError(t, r.UninstallAll(context.Background()))
	assert.Zero(t, r.Len())
	_, uninstalls := a.counts()
	assert.Equal(t, 1, uninstalls)
}

func TestRegister_Conflict(t *testing.T) {
	r := New()
	first := &countingTweak{}
	second := &countingTweak{}

	_, err := r.Register(context.Background(), "HideFPSCounter", first, false)
	require.NoError(t, err)

	_, err = r.Register(context.Background(), "HideFPSCounter", second, false)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "HideFPSCounter", conflict.Name)
	assert.Equal(t, "tweak HideFPSCounter is already installed", err.Error())

	installs, uninstalls := first.counts()
	assert.Equal(t, 1, installs, "original install must not run again")
	assert.Zero(t, uninstalls)
	installs, _ = second.counts()
	assert.Zero(t, installs, "rejected lifecycle must not run")

	// The original handle is still the one torn down.
	require.NoError(t, r.UninstallOne(context.Background(), "HideFPSCounter"))
	_, uninstalls = first.counts()
	assert.Equal(t, 1, uninstalls)
	_, uninstalls = second.counts()
	assert.Zero(t, uninstalls)
}

func TestRegister_Force(t *testing.T) {
	r := New()
	first := &countingTweak{}
	second := &countingTweak{installVal: "second"}

	_, err := r.Register(context.Background(), "A", first, false)
	require.NoError(t, err)
	_, err = r.Register(context.Background(), "B", &countingTweak{}, false)
	require.NoError(t, err)

	v, err := r.Register(context.Background(), "A", second, true)
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	_, firstUninstalls := first.counts()
	assert.Zero(t, firstUninstalls, "force replaces without uninstalling")
	assert.Equal(t, []string{"B", "A"}, r.Names())

	require.NoError(t, r.UninstallAll(context.Background()))
	_, secondUninstalls := second.counts()
	assert.Equal(t, 1, secondUninstalls)
	_, firstUninstalls = first.counts()
	assert.Zero(t, firstUninstalls)
}

func TestRegister_InvalidInput(t *testing.T) {
	r := New()

	_, err := r.Register(context.Background(), "", &countingTweak{}, false)
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = r.Register(context.Background(), "A", nil, false)
	require.Error(t, err)
	assert.Zero(t, r.Len())
}

func TestRegister_InstallFailureStaysRegistered(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := New(WithMetrics(m))
	boom := errors.New("SteamClient missing")
	tw := &countingTweak{installErr: boom}

	_, err := r.Register(context.Background(), "A", tw, false)
	require.ErrorIs(t, err, boom)

	var installErr *InstallError
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, "A", installErr.Name)

	assert.True(t, r.Has("A"), "registration happens before install")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstallFailures.WithLabelValues("A")))

	require.NoError(t, r.UninstallOne(context.Background(), "A"))
	_, uninstalls := tw.counts()
	assert.Equal(t, 1, uninstalls)
}

func TestRegister_InstallPanic(t *testing.T) {
	r := New()
	_, err := r.Register(context.Background(), "A", InstallFunc(func(ctx context.Context) (any, error) {
		panic("undefined is not a function")
	}), false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined is not a function")
	assert.True(t, r.Has("A"))
}

func TestRegister_InstallOnly(t *testing.T) {
	r := New()
	ran := 0
	v, err := r.Register(context.Background(), "MinimizeSteamGamepadUI", InstallFunc(func(ctx context.Context) (any, error) {
		ran++
		return true, nil
	}), false)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, 1, ran)

	require.NoError(t, r.UninstallOne(context.Background(), "MinimizeSteamGamepadUI"))
	assert.False(t, r.Has("MinimizeSteamGamepadUI"))
	assert.Equal(t, 1, ran)
}

func TestUninstallOne(t *testing.T) {
	t.Run("removes handle even when uninstall fails", func(t *testing.T) {
		r := New()
		boom := errors.New("restore failed")
		_, err := r.Register(context.Background(), "A", &countingTweak{uninstallErr: boom}, false)
		require.NoError(t, err)

		err = r.UninstallOne(context.Background(), "A")
		require.ErrorIs(t, err, boom)
		var uerr *UninstallError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "A", uerr.Name)
		assert.False(t, r.Has("A"))
	})

	t.Run("unknown name", func(t *testing.T) {
		r := New()
		err := r.UninstallOne(context.Background(), "nope")
		require.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("name is free again afterwards", func(t *testing.T) {
		r := New()
		_, err := r.Register(context.Background(), "A", &countingTweak{}, false)
		require.NoError(t, err)
		require.NoError(t, r.UninstallOne(context.Background(), "A"))

		_, err = r.Register(context.Background(), "A", &countingTweak{}, false)
		require.NoError(t, err)
	})
}

func TestUninstallAll_IsolatesFailures(t *testing.T) {
	const n = 5
	for failing := 0; failing < n; failing++ {
		t.Run(fmt.Sprintf("tweak %d fails", failing), func(t *testing.T) {
			r := New()
			var order []string
			var mu sync.Mutex
			tweaks := make([]*countingTweak, n)
			for i := range tweaks {
				name := fmt.Sprintf("T%d", i)
				tw := &countingTweak{onUninstall: func(context.Context) {
					mu.Lock()
					order = append(order, name)
					mu.Unlock()
				}}
				if i == failing {
					tw.uninstallErr = errors.New("boom")
				}
				tweaks[i] = tw
				_, err := r.Register(context.Background(), name, tw, false)
				require.NoError(t, err)
			}

			err := r.UninstallAll(context.Background())
			require.Error(t, err)
			var uerr *UninstallError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, fmt.Sprintf("T%d", failing), uerr.Name)

			assert.Zero(t, r.Len())
			for i, tw := range tweaks {
				_, uninstalls := tw.counts()
				assert.Equal(t, 1, uninstalls, "tweak %d", i)
			}
			assert.Equal(t, []string{"T0", "T1", "T2", "T3", "T4"}, order)
		})
	}
}

func TestUninstallAll_PanicDoesNotBlockOthers(t *testing.T) {
	r := New()
	after := &countingTweak{}
	_, err := r.Register(context.Background(), "panics", Funcs{
		UninstallFn: func(ctx context.Context) error { panic("nil host") },
	}, false)
	require.NoError(t, err)
	_, err = r.Register(context.Background(), "after", after, false)
	require.NoError(t, err)

	err = r.UninstallAll(context.Background())
	require.Error(t, err)
	assert.Zero(t, r.Len())
	_, uninstalls := after.counts()
	assert.Equal(t, 1, uninstalls)
}

func TestUninstallAll_Excluding(t *testing.T) {
	r := New()
	root := &countingTweak{}
	other := &countingTweak{}
	_, _ = r.Register(context.Background(), "GlosSI", root, false)
	_, _ = r.Register(context.Background(), "HideFPSCounter", other, false)

	require.NoError(t, r.UninstallAll(context.Background(), "GlosSI"))

	assert.Equal(t, []string{"GlosSI"}, r.Names())
	_, rootUninstalls := root.counts()
	assert.Zero(t, rootUninstalls)
	_, otherUninstalls := other.counts()
	assert.Equal(t, 1, otherUninstalls)
}

// TestUninstallAll_Reentrant mirrors the bootstrap root tweak: its
// uninstall tears down every sibling while the outer walk is in progress.
func TestUninstallAll_Reentrant(t *testing.T) {
	r := New()
	var siblings []*countingTweak
	root := &countingTweak{}
	root.onUninstall = func(ctx context.Context) {
		require.NoError(t, r.UninstallAll(ctx, "root"))
	}
	_, err := r.Register(context.Background(), "root", root, false)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		tw := &countingTweak{}
		siblings = append(siblings, tw)
		_, err := r.Register(context.Background(), fmt.Sprintf("T%d", i), tw, false)
		require.NoError(t, err)
	}

	require.NoError(t, r.UninstallAll(context.Background()))

	assert.Zero(t, r.Len())
	_, rootUninstalls := root.counts()
	assert.Equal(t, 1, rootUninstalls)
	for i, tw := range siblings {
		_, uninstalls := tw.counts()
		assert.Equal(t, 1, uninstalls, "sibling %d uninstalled exactly once", i)
	}
}

func TestRegistry_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := New(WithMetrics(m))

	_, _ = r.Register(context.Background(), "A", &countingTweak{}, false)
	_, _ = r.Register(context.Background(), "B", &countingTweak{uninstallErr: errors.New("x")}, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TweaksInstalled))

	_ = r.UninstallAll(context.Background())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TweaksInstalled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UninstallFailures.WithLabelValues("B")))
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := New()
	const workers = 50
	var wg sync.WaitGroup
	var conflicts sync.Map
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("T%d", i%10)
			if _, err := r.Register(context.Background(), name, &countingTweak{}, false); errors.Is(err, ErrConflict) {
				conflicts.Store(i, struct{}{})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
	n := 0
	conflicts.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, workers-10, n)
}
