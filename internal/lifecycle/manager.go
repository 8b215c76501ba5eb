// Package lifecycle owns installable-app state: online/offline tracking,
// background-script registration and upgrade, and the one-shot install
// prompt.
//
// Registration failure is deliberately non-fatal; the app continues
// without offline and update capability. There is no user-facing error
// channel here, failures are logged only.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innospot/runtime/internal/config"
	"github.com/innospot/runtime/internal/events"
	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/monitoring"
	"github.com/innospot/runtime/internal/platform"
	"github.com/innospot/runtime/internal/types"
)

// SyncTag is the background sync tag registered when the app regains
// visibility while online
const SyncTag = "background-data-sync"

// ErrNoUpdate is returned by UpdateWorker when no waiting script exists
var ErrNoUpdate = errors.New("lifecycle: no update waiting")

// ErrControlTimeout is returned when the new script never takes control
var ErrControlTimeout = errors.New("lifecycle: control transfer timed out")

// Manager orchestrates installable-app lifecycle
type Manager struct {
	mu sync.RWMutex

	log     *logging.Logger
	host    platform.Platform
	bus     *events.Bus
	cfg     config.WorkerConfig
	metrics *monitoring.Metrics

	registration platform.Registration
	prompt       platform.InstallPrompt
	state        types.AppRuntimeState

	controlCh     chan struct{}
	removeHandler func()
	initialized   bool
}

// NewManager creates a lifecycle manager
func NewManager(host platform.Platform, bus *events.Bus, cfg config.WorkerConfig, log *logging.Logger) *Manager {
	return &Manager{
		log:       log,
		host:      host,
		bus:       bus,
		cfg:       cfg,
		state:     types.AppRuntimeState{IsOnline: true},
		controlCh: make(chan struct{}, 1),
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Init registers platform event handling and the background script.
// Idempotent; registration failure is logged and non-fatal.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.mu.Unlock()

	m.removeHandler = m.host.OnEvent(m.handleEvent)

	if installed, err := m.host.Standalone(ctx); err == nil {
		m.mu.Lock()
		m.state.IsInstalled = installed
		m.mu.Unlock()
	}

	reg, err := m.host.RegisterWorker(ctx, m.cfg.ScriptURL, m.cfg.Scope)
	if err != nil {
		if errors.Is(err, platform.ErrUnsupported) {
			m.log.Info("background scripts unsupported, continuing without offline capability")
			return nil
		}
		m.log.Error("background script registration failed", zap.Error(err))
		return nil
	}

	m.mu.Lock()
	m.registration = reg
	m.mu.Unlock()
	m.log.Info("background script registered",
		zap.String("script", m.cfg.ScriptURL),
		zap.String("scope", m.cfg.Scope))

	// A waiting worker left over from a previous session means an update
	// is already available.
	if states, err := reg.States(ctx); err == nil && states.Waiting {
		m.setUpdateAvailable(true)
	}

	return nil
}

// Close detaches the platform event handler
func (m *Manager) Close() {
	if m.removeHandler != nil {
		m.removeHandler()
		m.removeHandler = nil
	}
}

func (m *Manager) handleEvent(evt platform.Event) {
	switch evt.Kind {
	case platform.EventOnline:
		m.setOnline(true)
	case platform.EventOffline:
		m.setOnline(false)

	case platform.EventBeforeInstallPrompt:
		// Last-one-wins: a newer platform prompt replaces a pending one.
		m.mu.Lock()
		m.prompt = evt.Prompt
		m.state.CanInstall = true
		m.mu.Unlock()
		m.log.Info("install prompt captured")
		m.publish(events.TypeInstallAvailable, nil)

	case platform.EventAppInstalled:
		m.mu.Lock()
		m.prompt = nil
		m.state.CanInstall = false
		m.state.IsInstalled = true
		m.mu.Unlock()
		m.log.Info("app installed")
		m.publish(events.TypeAppInstalled, nil)

	case platform.EventWorkerStateChange:
		if evt.States != nil {
			m.setUpdateAvailable(evt.States.Waiting)
		}

	case platform.EventControllerChange:
		select {
		case m.controlCh <- struct{}{}:
		default:
		}

	case platform.EventVisible:
		if m.AppInfo().IsOnline {
			// Best-effort; background sync is an optional capability.
			go m.RegisterSync(context.Background(), SyncTag)
		}
	}
}

func (m *Manager) setOnline(online bool) {
	m.mu.Lock()
	changed := m.state.IsOnline != online
	m.state.IsOnline = online
	m.mu.Unlock()
	if !changed {
		return
	}
	if m.metrics != nil {
		if online {
			m.metrics.OnlineState.Set(1)
		} else {
			m.metrics.OnlineState.Set(0)
		}
	}
	m.publish(events.TypeOnlineChanged, map[string]interface{}{"is_online": online})
}

func (m *Manager) setUpdateAvailable(available bool) {
	m.mu.Lock()
	changed := m.state.UpdateAvailable != available
	m.state.UpdateAvailable = available
	m.mu.Unlock()
	if !changed {
		return
	}
	if m.metrics != nil {
		if available {
			m.metrics.UpdateAvailable.Set(1)
		} else {
			m.metrics.UpdateAvailable.Set(0)
		}
	}
	if available {
		m.log.Info("background script update available")
		m.publish(events.TypeUpdateAvailable, nil)
	}
}

// ShowInstallPrompt consumes the pending prompt and reports whether the
// user accepted. Returns false when no prompt is pending. The captured
// handle is cleared before showing since platform prompts are single-use.
func (m *Manager) ShowInstallPrompt(ctx context.Context) bool {
	m.mu.Lock()
	prompt := m.prompt
	m.prompt = nil
	m.state.CanInstall = false
	m.mu.Unlock()

	if prompt == nil {
		m.log.Debug("install prompt not available")
		m.recordPrompt("unavailable")
		return false
	}

	outcome, err := prompt.Show(ctx)
	if err != nil {
		m.log.Error("install prompt failed", zap.Error(err))
		m.recordPrompt("error")
		return false
	}

	m.recordPrompt(string(outcome))
	m.log.Info("install prompt answered", zap.String("outcome", string(outcome)))
	return outcome == types.OutcomeAccepted
}

func (m *Manager) recordPrompt(outcome string) {
	if m.metrics != nil {
		m.metrics.InstallPrompts.WithLabelValues(outcome).Inc()
	}
}

// UpdateWorker activates a waiting background script. It sends the skip
// waiting control message, then reloads only after the platform signals
// that control transferred to the new script; reloading earlier would
// execute against a stale cached script.
func (m *Manager) UpdateWorker(ctx context.Context) error {
	m.mu.RLock()
	reg := m.registration
	m.mu.RUnlock()
	if reg == nil {
		return ErrNoUpdate
	}

	states, err := reg.States(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: query worker states: %w", err)
	}
	if !states.Waiting {
		return ErrNoUpdate
	}

	// Drain a stale control signal from a previous attempt.
	select {
	case <-m.controlCh:
	default:
	}

	if err := reg.PostMessage(ctx, map[string]interface{}{"type": "SKIP_WAITING"}); err != nil {
		return fmt.Errorf("lifecycle: post skip waiting: %w", err)
	}

	timeout := m.cfg.ControlWaitTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.controlCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		m.log.Warn("control transfer never signaled, not reloading")
		return ErrControlTimeout
	}

	m.setUpdateAvailable(false)
	if m.metrics != nil {
		m.metrics.WorkerUpdates.Inc()
	}
	m.publish(events.TypeWorkerUpdated, nil)
	m.log.Info("background script updated, reloading")

	if err := m.host.Reload(ctx); err != nil {
		m.log.Error("reload request failed", zap.Error(err))
	}
	return nil
}

// CheckForUpdates asks the platform to re-fetch the background script
func (m *Manager) CheckForUpdates(ctx context.Context) error {
	m.mu.RLock()
	reg := m.registration
	m.mu.RUnlock()
	if reg == nil {
		return nil
	}
	if err := reg.Update(ctx); err != nil {
		m.log.Error("update check failed", zap.Error(err))
		return err
	}
	m.log.Debug("checked for background script updates")
	return nil
}

// RegisterSync registers a background sync tag, best-effort
func (m *Manager) RegisterSync(ctx context.Context, tag string) error {
	m.mu.RLock()
	reg := m.registration
	m.mu.RUnlock()
	if reg == nil {
		return nil
	}
	if err := reg.RegisterSync(ctx, tag); err != nil {
		if errors.Is(err, platform.ErrUnsupported) {
			m.log.Debug("background sync unsupported")
			return nil
		}
		m.log.Error("background sync registration failed",
			zap.String("tag", tag), zap.Error(err))
		return err
	}
	m.log.Debug("background sync registered", zap.String("tag", tag))
	return nil
}

// Registration exposes the background-script registration handle; nil
// until Init succeeds. The notification engine requires it for a
// push-capable context.
func (m *Manager) Registration() platform.Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registration
}

// AppInfo returns a snapshot of runtime state; no side effects
func (m *Manager) AppInfo() types.AppRuntimeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) publish(t events.Type, payload interface{}) {
	m.bus.Publish(events.Event{
		Category: events.CategoryRuntime,
		Type:     t,
		Payload:  payload,
	})
}
