// Package metrics holds the Prometheus collectors shared by the registry and
// the supervisor. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "steamtweaks"

// Metrics groups every collector the process exports.
type Metrics struct {
	TweaksInstalled   prometheus.Gauge
	InstallFailures   *prometheus.CounterVec
	UninstallFailures *prometheus.CounterVec
	Probes            *prometheus.CounterVec
	FailureStreak     prometheus.Gauge
	Teardowns         prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TweaksInstalled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tweaks_installed",
			Help:      "Number of tweaks currently held by the registry.",
		}),
		InstallFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tweak_install_failures_total",
			Help:      "Tweak install calls that returned an error.",
		}, []string{"tweak"}),
		UninstallFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tweak_uninstall_failures_total",
			Help:      "Tweak uninstall calls that returned an error.",
		}, []string{"tweak"}),
		Probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "companion_probes_total",
			Help:      "Companion liveness probes by result.",
		}, []string{"result"}),
		FailureStreak: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "companion_consecutive_failures",
			Help:      "Current run of consecutive failed liveness probes.",
		}),
		Teardowns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardowns_total",
			Help:      "Supervisor-triggered teardowns of all tweaks.",
		}),
	}
}

func (m *Metrics) SetInstalled(n int) {
	if m == nil {
		return
	}
	m.TweaksInstalled.Set(float64(n))
}

func (m *Metrics) InstallFailed(tweak string) {
	if m == nil {
		return
	}
	m.InstallFailures.WithLabelValues(tweak).Inc()
}

func (m *Metrics) UninstallFailed(tweak string) {
	if m == nil {
		return
	}
	m.UninstallFailures.WithLabelValues(tweak).Inc()
}

// ObserveProbe records a probe result and the resulting failure streak.
func (m *Metrics) ObserveProbe(alive bool, streak int) {
	if m == nil {
		return
	}
	result := "dead"
	if alive {
		result = "alive"
	}
	m.Probes.WithLabelValues(result).Inc()
	m.FailureStreak.Set(float64(streak))
}

func (m *Metrics) TornDown() {
	if m == nil {
		return
	}
	m.Teardowns.Inc()
}
