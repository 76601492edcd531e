package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/steamtweaks/internal/companion"
	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/supervisor"
)

// errNoSession is reported by /ready while no tweaks are installed.
var errNoSession = errors.New("no active GlosSI session")

// healthHandler builds the /live, /ready and /metrics endpoints.
func (a *App) healthHandler() http.Handler {
	health := healthcheck.NewMetricsHandler(a.promReg, "steamtweaks")
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000))
	health.AddReadinessCheck("companion", a.companionCheck)
	health.AddReadinessCheck("supervisor", a.supervisorCheck)

	mux := http.NewServeMux()
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{}))
	return mux
}

func (a *App) companionCheck() error {
	s := a.Settings()
	return healthcheck.HTTPGetCheck(s.Companion.BaseURL+companion.RunningPath, s.Companion.ProbeTimeout)()
}

func (a *App) supervisorCheck() error {
	inst := a.Installation()
	if inst == nil {
		return errNoSession
	}
	if state := inst.Supervisor.State(); state != supervisor.Monitoring {
		return fmt.Errorf("supervisor is %s", state)
	}
	return nil
}

// startHealthServer initializes and runs the health check HTTP server.
func (a *App) startHealthServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	port := a.Settings().Health.Port
	if port <= 0 {
		logger.Debug("Health check server not started: disabled")
		return
	}

	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.healthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/ready", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeHealthServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return
	}
	logger.Debug("Health check server shut down gracefully.")
}
