// Package loading adapts resource-loading behavior to observed network
// and device conditions and drives a bounded progress simulation.
package loading

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/innospot/runtime/internal/config"
	"github.com/innospot/runtime/internal/events"
	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/monitoring"
	"github.com/innospot/runtime/internal/platform"
	"github.com/innospot/runtime/internal/types"
)

// ErrLoadTimeout is the terminal failure of a load attempt; the caller
// surfaces it with a retry action
var ErrLoadTimeout = errors.New("loading: timeout - please check your connection")

// ErrLoadInProgress is returned when a load is already running
var ErrLoadInProgress = errors.New("loading: already in progress")

const (
	progressCap   = 95.0
	tickInterval  = 50 * time.Millisecond
	completeGrace = 100 * time.Millisecond
)

// StateChangeFunc observes enter/exit of the loading state. It fires
// exactly once per transition; duplicate firing is a defect.
type StateChangeFunc func(loading bool)

// Scheduler samples platform signals, derives the loading strategy, and
// runs the progress simulation
type Scheduler struct {
	mu sync.RWMutex

	log     *logging.Logger
	host    platform.Platform
	bus     *events.Bus
	cfg     config.LoadingConfig
	metrics *monitoring.Metrics

	network  types.NetworkProfile
	device   types.DeviceProfile
	strategy types.LoadingStrategy
	state    types.LoadState

	onStateChange StateChangeFunc
	cancel        context.CancelFunc
	removeHandler func()
	started       time.Time
}

// NewScheduler creates a scheduler with baseline signals; Init refines
// them from the platform
func NewScheduler(host platform.Platform, bus *events.Bus, cfg config.LoadingConfig, log *logging.Logger) *Scheduler {
	network := DefaultNetwork()
	device := DefaultDevice()
	return &Scheduler{
		log:      log,
		host:     host,
		bus:      bus,
		cfg:      cfg,
		network:  network,
		device:   device,
		strategy: DeriveStrategy(network, device),
		state:    types.LoadState{Phase: types.LoadIdle},
	}
}

// WithMetrics adds metrics tracking to the scheduler
func (s *Scheduler) WithMetrics(metrics *monitoring.Metrics) *Scheduler {
	s.metrics = metrics
	return s
}

// OnStateChange sets the loading-state observer
func (s *Scheduler) OnStateChange(fn StateChangeFunc) {
	s.mu.Lock()
	s.onStateChange = fn
	s.mu.Unlock()
}

// Init samples platform signals and subscribes to connection changes.
// Unavailable signals keep the capable-device baseline rather than
// blocking startup.
func (s *Scheduler) Init(ctx context.Context) {
	if network, err := s.host.Network(ctx); err == nil {
		s.updateNetwork(network)
	} else if !errors.Is(err, platform.ErrUnsupported) {
		s.log.Warn("network sampling failed, keeping baseline")
	}

	if device, err := s.host.Device(ctx); err == nil {
		s.mu.Lock()
		s.device = device
		s.strategy = DeriveStrategy(s.network, s.device)
		s.mu.Unlock()
	}

	s.removeHandler = s.host.OnEvent(func(evt platform.Event) {
		if evt.Kind == platform.EventConnectionChange && evt.Network != nil {
			s.updateNetwork(*evt.Network)
		}
	})
}

// Close stops any running simulation and detaches event handling
func (s *Scheduler) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.removeHandler != nil {
		s.removeHandler()
		s.removeHandler = nil
	}
}

func (s *Scheduler) updateNetwork(network types.NetworkProfile) {
	s.mu.Lock()
	s.network = network
	s.strategy = DeriveStrategy(s.network, s.device)
	s.mu.Unlock()
}

// Strategy returns the current loading strategy
func (s *Scheduler) Strategy() types.LoadingStrategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy
}

// Signals returns the observed network and device profiles
func (s *Scheduler) Signals() (types.NetworkProfile, types.DeviceProfile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network, s.device
}

// State returns the loading-simulation snapshot
func (s *Scheduler) State() types.LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ShouldOptimizeNow reports whether constrained-resource optimizations
// apply for the current signals
func (s *Scheduler) ShouldOptimizeNow() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ShouldOptimize(s.network, s.device)
}

// Start begins a loading simulation. Progress runs 0-100 bounded by the
// configured window; hitting MaxLoadTime is the only fatal failure and
// cancels the pending completion. The simulation lifetime belongs to the
// scheduler, not the caller: only Close or the ceiling stops it.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state.Phase == types.LoadRunning {
		s.mu.Unlock()
		return ErrLoadInProgress
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = types.LoadState{Phase: types.LoadRunning}
	s.started = time.Now()
	estimated := clamp(estimateTotal(s.network.EffectiveType), s.cfg.MinLoadTime, s.cfg.MaxLoadTime)
	maxLoad := s.cfg.MaxLoadTime
	notify := s.onStateChange
	s.mu.Unlock()

	if notify != nil {
		notify(true)
	}
	s.publish(events.TypeLoadStarted, nil)

	go s.run(runCtx, estimated, maxLoad)
	return nil
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if hi > 0 && d > hi {
		d = hi
	}
	if d < lo {
		d = lo
	}
	return d
}

func (s *Scheduler) run(ctx context.Context, estimated, maxLoad time.Duration) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var timeoutCh <-chan time.Time
	if maxLoad > 0 {
		timer := time.NewTimer(maxLoad)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.abort()
			return

		case <-timeoutCh:
			s.fail()
			return

		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed < estimated {
				progress := float64(elapsed) / float64(estimated) * 100
				if progress > progressCap {
					progress = progressCap
				}
				s.setProgress(progress)
				continue
			}

			s.setProgress(100)

			// Brief grace so observers see 100% before completion; the
			// timeout can still preempt it.
			select {
			case <-ctx.Done():
				s.abort()
				return
			case <-timeoutCh:
				s.fail()
				return
			case <-time.After(completeGrace):
			}
			s.complete()
			return
		}
	}
}

func (s *Scheduler) setProgress(progress float64) {
	s.mu.Lock()
	if s.state.Phase != types.LoadRunning {
		s.mu.Unlock()
		return
	}
	s.state.Progress = progress
	s.mu.Unlock()
	s.publish(events.TypeLoadProgress, map[string]interface{}{"progress": progress})
}

func (s *Scheduler) complete() {
	s.mu.Lock()
	if s.state.Phase != types.LoadRunning {
		s.mu.Unlock()
		return
	}
	s.state = types.LoadState{Phase: types.LoadComplete, Progress: 100}
	notify := s.onStateChange
	duration := time.Since(s.started)
	s.cancel = nil
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.LoadDuration.Observe(duration.Seconds())
	}
	if notify != nil {
		notify(false)
	}
	s.publish(events.TypeLoadComplete, nil)
}

func (s *Scheduler) fail() {
	s.mu.Lock()
	if s.state.Phase != types.LoadRunning {
		s.mu.Unlock()
		return
	}
	s.state = types.LoadState{
		Phase:    types.LoadFailed,
		Progress: s.state.Progress,
		Error:    ErrLoadTimeout.Error(),
	}
	notify := s.onStateChange
	s.cancel = nil
	s.mu.Unlock()

	s.log.Warn("loading hit the hard ceiling")
	if s.metrics != nil {
		s.metrics.LoadTimeouts.Inc()
	}
	if notify != nil {
		notify(false)
	}
	s.publish(events.TypeLoadFailed, map[string]interface{}{"error": ErrLoadTimeout.Error()})
}

// abort returns a cancelled simulation to idle. The exit callback still
// fires so enter/exit stay paired.
func (s *Scheduler) abort() {
	s.mu.Lock()
	if s.state.Phase != types.LoadRunning {
		s.mu.Unlock()
		return
	}
	s.state = types.LoadState{Phase: types.LoadIdle}
	notify := s.onStateChange
	s.cancel = nil
	s.mu.Unlock()

	if notify != nil {
		notify(false)
	}
}

// Retry restarts the simulation after a failure
func (s *Scheduler) Retry() error {
	s.mu.Lock()
	if s.state.Phase == types.LoadRunning {
		s.mu.Unlock()
		return ErrLoadInProgress
	}
	s.state = types.LoadState{Phase: types.LoadIdle}
	s.mu.Unlock()
	return s.Start()
}

func (s *Scheduler) publish(t events.Type, payload interface{}) {
	s.bus.Publish(events.Event{
		Category: events.CategoryLoading,
		Type:     t,
		Payload:  payload,
	})
}
