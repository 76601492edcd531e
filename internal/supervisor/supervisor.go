// Package supervisor watches companion liveness once a session exists and
// tears every tweak down when the companion stays away.
//
// States move strictly forward: Unarmed, Monitoring, TornDown. A single
// failed probe never tears down; FailThreshold consecutive failures do,
// exactly once, after which the periodic check is gone for good.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vk/steamtweaks/internal/ctxlog"
	"github.com/vk/steamtweaks/internal/metrics"
	"vawter.tech/stopper"
)

const (
	// DefaultMonitorInterval is the liveness polling period once a session exists.
	DefaultMonitorInterval = 666 * time.Millisecond
	// DefaultDiscoveryInterval is the polling period used while waiting for
	// the companion to appear, before any session exists.
	DefaultDiscoveryInterval = 5 * time.Second
	// DefaultFailThreshold is the number of consecutive failed probes that
	// triggers teardown.
	DefaultFailThreshold = 2
)

// ErrAlreadyStarted is returned by Start on a supervisor that left Unarmed.
var ErrAlreadyStarted = errors.New("supervisor: already started")

// State is the supervisor's position in its lifecycle.
type State int32

const (
	Unarmed State = iota
	Monitoring
	TornDown
)

func (s State) String() string {
	switch s {
	case Unarmed:
		return "unarmed"
	case Monitoring:
		return "monitoring"
	case TornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Prober reports companion liveness. companion.Client satisfies it.
type Prober interface {
	Liveness(ctx context.Context) bool
}

// TeardownFunc is invoked once when the failure threshold is reached.
type TeardownFunc func(ctx context.Context)

// Supervisor runs the periodic liveness check.
type Supervisor struct {
	prober    Prober
	teardown  TeardownFunc
	interval  time.Duration
	threshold int
	metrics   *metrics.Metrics

	mu       sync.Mutex
	state    State
	failures int
	sctx     *stopper.Context
	exited   chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithInterval sets the monitoring period.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.interval = d
	}
}

// WithFailThreshold sets how many consecutive failures trigger teardown.
func WithFailThreshold(n int) Option {
	return func(s *Supervisor) {
		s.threshold = n
	}
}

// WithMetrics records probe results and teardowns on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// New creates an Unarmed supervisor.
func New(p Prober, teardown TeardownFunc, opts ...Option) *Supervisor {
	s := &Supervisor{
		prober:    p,
		teardown:  teardown,
		interval:  DefaultMonitorInterval,
		threshold: DefaultFailThreshold,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultMonitorInterval
	}
	if s.threshold < 1 {
		s.threshold = DefaultFailThreshold
	}
	return s
}

// Start arms the supervisor: it moves to Monitoring and begins probing
// every interval. The check runs until teardown, Retire, or ctx ends; in
// every case the supervisor ends in TornDown with Done closed.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unarmed {
		return fmt.Errorf("%w: state is %s", ErrAlreadyStarted, s.state)
	}

	s.state = Monitoring
	s.sctx = stopper.WithContext(ctx)
	s.exited = make(chan struct{})
	s.sctx.Go(s.monitor)

	ctxlog.FromContext(ctx).Debug("Supervisor armed.", "interval", s.interval, "fail_threshold", s.threshold)
	return nil
}

func (s *Supervisor) monitor(sctx *stopper.Context) error {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		sctx.Stop(0)
		s.abandon()
		close(s.exited)
	}()

	for {
		select {
		case <-sctx.Stopping():
			return nil
		case <-sctx.Done():
			return nil
		case <-ticker.C:
			if s.tick(sctx) {
				return nil
			}
		}
	}
}

// tick runs one probe and reports whether monitoring is over.
func (s *Supervisor) tick(ctx context.Context) bool {
	alive := s.prober.Liveness(ctx)

	s.mu.Lock()
	if s.state != Monitoring {
		s.mu.Unlock()
		return true
	}
	if alive {
		s.failures = 0
	} else {
		s.failures++
	}
	streak := s.failures
	fire := !alive && streak >= s.threshold
	if fire {
		s.state = TornDown
	}
	s.mu.Unlock()

	s.metrics.ObserveProbe(alive, streak)
	if !fire {
		if !alive {
			ctxlog.FromContext(ctx).Warn("Companion liveness probe failed.", "consecutive_failures", streak, "fail_threshold", s.threshold)
		}
		return false
	}

	ctxlog.FromContext(ctx).Warn("Companion gone, tearing down all tweaks.", "consecutive_failures", streak)
	s.metrics.TornDown()
	if s.teardown != nil {
		s.teardown(context.WithoutCancel(ctx))
	}
	s.markDone()
	return true
}

// Retire moves the supervisor to TornDown without running teardown. It is
// used when the tweaks are being torn down by other means.
func (s *Supervisor) Retire() {
	s.mu.Lock()
	prev := s.state
	s.state = TornDown
	sctx := s.sctx
	s.mu.Unlock()

	if prev == TornDown {
		return
	}
	if sctx != nil {
		sctx.Stop(100 * time.Millisecond)
	}
	s.markDone()
}

// abandon moves a supervisor whose check stopped without teardown or Retire,
// because its context ended, to TornDown. Teardown does not run.
func (s *Supervisor) abandon() {
	s.mu.Lock()
	if s.state == Monitoring {
		s.state = TornDown
	}
	s.mu.Unlock()
	s.markDone()
}

// Wait blocks until the monitoring goroutine has exited. It returns
// immediately for a supervisor that was never started.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()
	if exited != nil {
		<-exited
	}
}

func (s *Supervisor) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the supervisor reaches TornDown.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failures returns the current run of consecutive failed probes.
func (s *Supervisor) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
