package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innospot/runtime/internal/config"
	"github.com/innospot/runtime/internal/events"
	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/platform"
	"github.com/innospot/runtime/internal/types"
)

type fakeRegistration struct {
	mu       sync.Mutex
	states   types.WorkerStates
	posted   []map[string]interface{}
	syncTags []string
	updates  int
	onPost   func(msg map[string]interface{})
}

func (r *fakeRegistration) States(ctx context.Context) (types.WorkerStates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states, nil
}

func (r *fakeRegistration) Update(ctx context.Context) error {
	r.mu.Lock()
	r.updates++
	r.mu.Unlock()
	return nil
}

func (r *fakeRegistration) PostMessage(ctx context.Context, msg map[string]interface{}) error {
	r.mu.Lock()
	r.posted = append(r.posted, msg)
	onPost := r.onPost
	r.mu.Unlock()
	if onPost != nil {
		onPost(msg)
	}
	return nil
}

func (r *fakeRegistration) RegisterSync(ctx context.Context, tag string) error {
	r.mu.Lock()
	r.syncTags = append(r.syncTags, tag)
	r.mu.Unlock()
	return nil
}

type fakeHost struct {
	mu          sync.Mutex
	handlers    []platform.Handler
	reg         *fakeRegistration
	registerErr error
	standalone  bool
	reloads     int
}

func newFakeHost() *fakeHost {
	return &fakeHost{reg: &fakeRegistration{}}
}

func (h *fakeHost) emit(evt platform.Event) {
	h.mu.Lock()
	handlers := append([]platform.Handler(nil), h.handlers...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn(evt)
	}
}

func (h *fakeHost) OnEvent(fn platform.Handler) func() {
	h.mu.Lock()
	h.handlers = append(h.handlers, fn)
	h.mu.Unlock()
	return func() {}
}

func (h *fakeHost) RegisterWorker(ctx context.Context, scriptURL, scope string) (platform.Registration, error) {
	if h.registerErr != nil {
		return nil, h.registerErr
	}
	return h.reg, nil
}

func (h *fakeHost) Standalone(ctx context.Context) (bool, error) { return h.standalone, nil }

func (h *fakeHost) Reload(ctx context.Context) error {
	h.mu.Lock()
	h.reloads++
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) reloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}

func (h *fakeHost) Subscribe(ctx context.Context, key []byte) (*platform.RawSubscription, error) {
	return nil, platform.ErrUnsupported
}
func (h *fakeHost) Unsubscribe(ctx context.Context) error { return platform.ErrUnsupported }
func (h *fakeHost) CurrentSubscription(ctx context.Context) (*platform.RawSubscription, error) {
	return nil, platform.ErrUnsupported
}
func (h *fakeHost) RequestPermission(ctx context.Context) (types.PermissionState, error) {
	return types.PermissionDefault, nil
}
func (h *fakeHost) Permission(ctx context.Context) (types.PermissionState, error) {
	return types.PermissionDefault, nil
}
func (h *fakeHost) Show(ctx context.Context, n types.Notification) error { return nil }
func (h *fakeHost) Active(ctx context.Context) ([]types.Notification, error) {
	return nil, nil
}
func (h *fakeHost) CloseAll(ctx context.Context) error { return nil }
func (h *fakeHost) Network(ctx context.Context) (types.NetworkProfile, error) {
	return types.NetworkProfile{}, platform.ErrUnsupported
}
func (h *fakeHost) Device(ctx context.Context) (types.DeviceProfile, error) {
	return types.DeviceProfile{}, platform.ErrUnsupported
}

type acceptPrompt struct{ shows int }

func (p *acceptPrompt) Show(ctx context.Context) (types.PromptOutcome, error) {
	p.shows++
	return types.OutcomeAccepted, nil
}

type dismissPrompt struct{}

func (p *dismissPrompt) Show(ctx context.Context) (types.PromptOutcome, error) {
	return types.OutcomeDismissed, nil
}

func newManager(t *testing.T, host *fakeHost) *Manager {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	cfg := config.WorkerConfig{
		ScriptURL:          "/sw.js",
		Scope:              "/",
		ControlWaitTimeout: 200 * time.Millisecond,
	}
	m := NewManager(host, bus, cfg, logging.NewNop())
	t.Cleanup(m.Close)
	require.NoError(t, m.Init(context.Background()))
	return m
}

func TestInitIdempotent(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)
	require.NoError(t, m.Init(context.Background()))
	assert.Len(t, host.handlers, 1)
}

func TestInitRegistrationFailureNonFatal(t *testing.T) {
	host := newFakeHost()
	host.registerErr = errors.New("network down")

	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(host, bus, config.WorkerConfig{ScriptURL: "/sw.js", Scope: "/"}, logging.NewNop())
	defer m.Close()

	require.NoError(t, m.Init(context.Background()))
	assert.Nil(t, m.Registration())
}

func TestShowInstallPromptSingleUse(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)

	prompt := &acceptPrompt{}
	host.emit(platform.Event{Kind: platform.EventBeforeInstallPrompt, Prompt: prompt})

	assert.True(t, m.AppInfo().CanInstall)
	assert.True(t, m.ShowInstallPrompt(context.Background()))
	assert.Equal(t, 1, prompt.shows)

	// No intervening prompt event: second call must fail
	assert.False(t, m.ShowInstallPrompt(context.Background()))
	assert.False(t, m.AppInfo().CanInstall)
	assert.Equal(t, 1, prompt.shows)
}

func TestInstallPromptLastOneWins(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)

	first := &acceptPrompt{}
	host.emit(platform.Event{Kind: platform.EventBeforeInstallPrompt, Prompt: first})
	host.emit(platform.Event{Kind: platform.EventBeforeInstallPrompt, Prompt: &dismissPrompt{}})

	assert.False(t, m.ShowInstallPrompt(context.Background()))
	assert.Zero(t, first.shows)
}

func TestAppInstalledClearsPrompt(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)

	host.emit(platform.Event{Kind: platform.EventBeforeInstallPrompt, Prompt: &acceptPrompt{}})
	host.emit(platform.Event{Kind: platform.EventAppInstalled})

	info := m.AppInfo()
	assert.True(t, info.IsInstalled)
	assert.False(t, info.CanInstall)
	assert.False(t, m.ShowInstallPrompt(context.Background()))
}

func TestOnlineOffline(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)

	host.emit(platform.Event{Kind: platform.EventOffline})
	assert.False(t, m.AppInfo().IsOnline)

	host.emit(platform.Event{Kind: platform.EventOnline})
	assert.True(t, m.AppInfo().IsOnline)
}

func TestUpdateAvailableTracksWaiting(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)

	host.emit(platform.Event{
		Kind:   platform.EventWorkerStateChange,
		States: &types.WorkerStates{Waiting: true, Active: true},
	})
	assert.True(t, m.AppInfo().UpdateAvailable)
}

func TestUpdateWorkerNoWaiting(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)

	err := m.UpdateWorker(context.Background())
	assert.ErrorIs(t, err, ErrNoUpdate)
	assert.Zero(t, host.reloadCount())
}

func TestUpdateWorkerReloadsOnlyAfterControlTransfer(t *testing.T) {
	host := newFakeHost()
	host.reg.states = types.WorkerStates{Waiting: true, Active: true}
	m := newManager(t, host)

	// Simulate a delayed skip-waiting acknowledgment: control transfers
	// 80ms after the message is posted.
	host.reg.onPost = func(msg map[string]interface{}) {
		require.Equal(t, "SKIP_WAITING", msg["type"])
		assert.Zero(t, host.reloadCount(), "reload before control transfer")
		go func() {
			time.Sleep(80 * time.Millisecond)
			host.emit(platform.Event{Kind: platform.EventControllerChange})
		}()
	}

	require.NoError(t, m.UpdateWorker(context.Background()))
	assert.Equal(t, 1, host.reloadCount())
	assert.False(t, m.AppInfo().UpdateAvailable)
}

func TestUpdateWorkerControlTimeout(t *testing.T) {
	host := newFakeHost()
	host.reg.states = types.WorkerStates{Waiting: true}
	m := newManager(t, host)

	err := m.UpdateWorker(context.Background())
	assert.ErrorIs(t, err, ErrControlTimeout)
	assert.Zero(t, host.reloadCount(), "timed-out update must never reload")
}

func TestVisibleWhileOnlineRegistersSync(t *testing.T) {
	host := newFakeHost()
	m := newManager(t, host)
	_ = m

	host.emit(platform.Event{Kind: platform.EventVisible})

	assert.Eventually(t, func() bool {
		host.reg.mu.Lock()
		defer host.reg.mu.Unlock()
		return len(host.reg.syncTags) == 1 && host.reg.syncTags[0] == SyncTag
	}, time.Second, 10*time.Millisecond)
}
