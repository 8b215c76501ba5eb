// Package notify manages notification permission, the push subscription,
// preference filtering, and the durable delivery queue.
package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innospot/runtime/internal/config"
	"github.com/innospot/runtime/internal/events"
	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/monitoring"
	"github.com/innospot/runtime/internal/platform"
	"github.com/innospot/runtime/internal/registry"
	"github.com/innospot/runtime/internal/storage"
	"github.com/innospot/runtime/internal/types"
)

// Engine owns the notification subsystem. Permission is a one-way
// machine for the session: default moves to granted or denied, and
// denied stays denied until the user flips it outside the app.
type Engine struct {
	mu sync.Mutex

	log      *logging.Logger
	host     platform.Platform
	bus      *events.Bus
	store    *storage.Store
	registry *registry.Client
	cfg      config.PushConfig
	metrics  *monitoring.Metrics
	digest   *digest

	permission   types.PermissionState
	subscription *types.Subscription

	now func() time.Time
}

// NewEngine creates the engine; Init attaches it to the platform
func NewEngine(host platform.Platform, bus *events.Bus, store *storage.Store, reg *registry.Client, cfg config.PushConfig, log *logging.Logger) *Engine {
	e := &Engine{
		log:        log,
		host:       host,
		bus:        bus,
		store:      store,
		registry:   reg,
		cfg:        cfg,
		permission: types.PermissionDefault,
		now:        time.Now,
	}
	e.digest = newDigest(e.drainDigest)
	return e
}

// WithMetrics adds metrics tracking to the engine
func (e *Engine) WithMetrics(metrics *monitoring.Metrics) *Engine {
	e.metrics = metrics
	return e
}

// Init samples the current permission, adopts any subscription the
// platform still holds, and arms the digest schedule. Platform
// unavailability degrades to a no-op engine rather than failing.
func (e *Engine) Init(ctx context.Context) error {
	prefs, err := e.store.Preferences(ctx)
	if err != nil {
		return err
	}

	if state, err := e.host.Permission(ctx); err == nil {
		e.mu.Lock()
		e.permission = state
		e.mu.Unlock()
	} else if !errorsIsUnsupported(err) {
		e.log.Warn("permission sampling failed", zap.Error(err))
	}

	if raw, err := e.host.CurrentSubscription(ctx); err == nil && raw != nil {
		sub, buildErr := e.buildSubscription(ctx, raw, prefs)
		if buildErr != nil {
			return buildErr
		}
		e.mu.Lock()
		e.subscription = &sub
		e.mu.Unlock()
		e.setSubscribedMetric(true)
		// Refresh the registry record; staleness here is tolerable.
		if err := e.registry.Upsert(ctx, sub); err != nil {
			e.recordSyncFailure("upsert", err)
		}
	}

	e.digest.apply(prefs.Frequency)
	return nil
}

// Close stops the digest schedule
func (e *Engine) Close() {
	e.digest.stop()
}

func errorsIsUnsupported(err error) bool {
	return errors.Is(err, platform.ErrUnsupported)
}

// Permission returns the session permission state
func (e *Engine) Permission() types.PermissionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.permission
}

// RequestPermission asks the platform for notification permission. A
// grant immediately attempts a subscription; a denial is terminal for
// the session and short-circuits further requests.
func (e *Engine) RequestPermission(ctx context.Context) (types.PermissionState, error) {
	e.mu.Lock()
	if e.permission == types.PermissionDenied {
		e.mu.Unlock()
		return types.PermissionDenied, nil
	}
	e.mu.Unlock()

	state, err := e.host.RequestPermission(ctx)
	if err != nil {
		return types.PermissionDefault, err
	}

	e.mu.Lock()
	e.permission = state
	e.mu.Unlock()
	e.log.Info("notification permission", zap.String("state", string(state)))

	if state == types.PermissionGranted {
		e.Subscribe(ctx)
	}
	return state, nil
}

// Subscribe creates a push subscription bound to the configured server
// key and records it in the remote registry. Any platform or registry
// failure yields false with no automatic retry.
func (e *Engine) Subscribe(ctx context.Context) bool {
	e.mu.Lock()
	granted := e.permission == types.PermissionGranted
	e.mu.Unlock()
	if !granted {
		return false
	}

	key, err := decodeServerKey(e.cfg.VAPIDPublicKey)
	if err != nil {
		e.log.Error("server key is not valid base64url", zap.Error(err))
		return false
	}

	prefs, err := e.store.Preferences(ctx)
	if err != nil {
		e.log.Error("preference load failed", zap.Error(err))
		return false
	}

	raw, err := e.host.Subscribe(ctx, key)
	if err != nil {
		e.log.Error("push subscription failed", zap.Error(err))
		return false
	}

	sub, err := e.buildSubscription(ctx, raw, prefs)
	if err != nil {
		e.log.Error("subscription assembly failed", zap.Error(err))
		return false
	}

	if err := e.registry.Upsert(ctx, sub); err != nil {
		e.recordSyncFailure("upsert", err)
		return false
	}

	e.mu.Lock()
	e.subscription = &sub
	e.mu.Unlock()
	e.setSubscribedMetric(true)
	e.publish(events.TypeSubscriptionChanged, map[string]interface{}{"subscribed": true})
	e.log.Info("push subscription established", zap.String("endpoint", sub.Endpoint))
	return true
}

// Unsubscribe tears the subscription down locally first, then makes a
// best-effort registry removal. Local state clears regardless of the
// remote outcome, and a device with no subscription succeeds with no
// remote call.
func (e *Engine) Unsubscribe(ctx context.Context) bool {
	e.mu.Lock()
	sub := e.subscription
	e.subscription = nil
	e.mu.Unlock()
	if sub == nil {
		return true
	}

	if err := e.host.Unsubscribe(ctx); err != nil {
		e.log.Warn("platform unsubscribe failed", zap.Error(err))
	}

	if err := e.registry.Remove(ctx, sub.Endpoint, sub.UserID); err != nil {
		e.recordSyncFailure("remove", err)
	}

	e.setSubscribedMetric(false)
	e.publish(events.TypeSubscriptionChanged, map[string]interface{}{"subscribed": false})
	return true
}

// IsSubscribed reports whether a live subscription exists
func (e *Engine) IsSubscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscription != nil
}

// Subscription returns a copy of the live subscription, or nil
func (e *Engine) Subscription() *types.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subscription == nil {
		return nil
	}
	sub := *e.subscription
	return &sub
}

func (e *Engine) buildSubscription(ctx context.Context, raw *platform.RawSubscription, prefs types.Preferences) (types.Subscription, error) {
	deviceID, err := e.store.DeviceID(ctx)
	if err != nil {
		return types.Subscription{}, err
	}
	return types.Subscription{
		Endpoint: raw.Endpoint,
		Keys: types.SubscriptionKeys{
			P256DH: raw.P256DH,
			Auth:   raw.Auth,
		},
		UserID:      e.cfg.UserID,
		DeviceID:    deviceID,
		Preferences: prefs,
	}, nil
}

// decodeServerKey decodes a base64url VAPID public key, tolerating both
// padded and unpadded input
func decodeServerKey(key string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "="))
}

// Show delivers a notification subject to the preference filters. With a
// non-immediate frequency the notification lands in the durable queue
// for the next digest instead. The returned bool reports whether the
// notification actually displayed.
func (e *Engine) Show(ctx context.Context, n types.Notification) (bool, error) {
	prefs, err := e.store.Preferences(ctx)
	if err != nil {
		return false, err
	}

	if prefs.Frequency != types.FrequencyImmediate {
		return false, e.Queue(ctx, n)
	}
	return e.deliver(ctx, n, prefs)
}

// ScheduleNotification delivers n after the given delay. The timer is
// fire-and-forget; filters are evaluated at delivery time.
func (e *Engine) ScheduleNotification(n types.Notification, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if _, err := e.Show(context.Background(), n); err != nil {
			e.log.Warn("scheduled delivery failed", zap.Error(err))
		}
	})
}

// deliver runs the filter chain and hands the notification to the
// platform. Filtered deliveries are dropped, not errors.
func (e *Engine) deliver(ctx context.Context, n types.Notification, prefs types.Preferences) (bool, error) {
	e.mu.Lock()
	granted := e.permission == types.PermissionGranted
	e.mu.Unlock()
	if !granted {
		e.recordFiltered(ReasonPermission, n.Tag)
		return false, nil
	}

	if InQuietHours(e.now(), prefs.QuietHours) {
		e.recordFiltered(ReasonQuietHours, n.Tag)
		return false, nil
	}
	if !allowedByCategories(n.Tag, prefs) {
		e.recordFiltered(ReasonCategory, n.Tag)
		return false, nil
	}

	if err := e.host.Show(ctx, applyDefaults(n, e.now())); err != nil {
		return false, err
	}

	if e.metrics != nil {
		e.metrics.NotificationsShown.Inc()
	}
	e.publish(events.TypeNotificationShown, map[string]interface{}{"tag": n.Tag, "title": n.Title})
	return true, nil
}

// Queue appends a notification to the durable FIFO queue
func (e *Engine) Queue(ctx context.Context, n types.Notification) error {
	seq, err := e.store.Enqueue(ctx, n)
	if err != nil {
		return err
	}
	e.updateQueueDepth(ctx)
	e.publish(events.TypeNotificationQueued, map[string]interface{}{"seq": seq, "tag": n.Tag})
	return nil
}

// ProcessQueue attempts delivery for every queued notification and then
// clears the queue unconditionally. Filters are re-evaluated per item at
// drain time, and filtered items are dropped rather than requeued.
func (e *Engine) ProcessQueue(ctx context.Context) (int, error) {
	pending, err := e.store.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	prefs, err := e.store.Preferences(ctx)
	if err != nil {
		return 0, err
	}

	shown := 0
	for _, item := range pending {
		ok, err := e.deliver(ctx, item.Notification, prefs)
		if err != nil {
			e.log.Warn("queued delivery failed", zap.Int64("seq", item.Seq), zap.Error(err))
			continue
		}
		if ok {
			shown++
		}
	}

	if err := e.store.ClearQueue(ctx); err != nil {
		return shown, err
	}
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(0)
	}
	return shown, nil
}

// Preferences returns the persisted preference record
func (e *Engine) Preferences(ctx context.Context) (types.Preferences, error) {
	return e.store.Preferences(ctx)
}

// updateAttempts bounds the reload-and-remerge loop on version conflict
const updateAttempts = 3

// UpdatePreferences merges the patch into the persisted record under the
// version check, rearms the digest schedule, and re-synchronizes the
// registry when a subscription is live. A concurrent writer triggers a
// reload and remerge; persistent contention surfaces storage.ErrConflict.
func (e *Engine) UpdatePreferences(ctx context.Context, patch types.PreferencesPatch) (types.Preferences, error) {
	var saved types.Preferences
	for attempt := 0; ; attempt++ {
		current, err := e.store.Preferences(ctx)
		if err != nil {
			return types.Preferences{}, err
		}

		saved, err = e.store.SavePreferences(ctx, mergePatch(current, patch))
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrConflict) || attempt == updateAttempts-1 {
			return types.Preferences{}, err
		}
	}

	e.digest.apply(saved.Frequency)
	e.publish(events.TypePreferencesChanged, map[string]interface{}{"version": saved.Version})

	e.mu.Lock()
	sub := e.subscription
	if sub != nil {
		sub.Preferences = saved
		snapshot := *sub
		sub = &snapshot
	}
	e.mu.Unlock()

	if sub != nil {
		if err := e.registry.Upsert(ctx, *sub); err != nil {
			e.recordSyncFailure("upsert", err)
		}
	}
	return saved, nil
}

// mergePatch applies non-nil patch fields onto the current record.
// Version is carried through for the optimistic save.
func mergePatch(current types.Preferences, patch types.PreferencesPatch) types.Preferences {
	if patch.PatentAlerts != nil {
		current.PatentAlerts = *patch.PatentAlerts
	}
	if patch.SystemUpdates != nil {
		current.SystemUpdates = *patch.SystemUpdates
	}
	if patch.CollaborationInvites != nil {
		current.CollaborationInvites = *patch.CollaborationInvites
	}
	if patch.ReportReady != nil {
		current.ReportReady = *patch.ReportReady
	}
	if patch.MaintenanceNotices != nil {
		current.MaintenanceNotices = *patch.MaintenanceNotices
	}
	if patch.Marketing != nil {
		current.Marketing = *patch.Marketing
	}
	if patch.Frequency != nil {
		current.Frequency = *patch.Frequency
	}
	if patch.QuietHours != nil {
		current.QuietHours = *patch.QuietHours
	}
	return current
}

// ActiveNotifications lists notifications currently displayed
func (e *Engine) ActiveNotifications(ctx context.Context) ([]types.Notification, error) {
	active, err := e.host.Active(ctx)
	if err != nil {
		if errorsIsUnsupported(err) {
			return nil, nil
		}
		return nil, err
	}
	return active, nil
}

// ClearAll closes every displayed notification
func (e *Engine) ClearAll(ctx context.Context) error {
	if err := e.host.CloseAll(ctx); err != nil && !errorsIsUnsupported(err) {
		return err
	}
	return nil
}

// drainDigest runs on the digest schedule
func (e *Engine) drainDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shown, err := e.ProcessQueue(ctx)
	if err != nil {
		e.log.Warn("digest drain failed", zap.Error(err))
		return
	}
	if shown > 0 {
		e.log.Info("digest delivered", zap.Int("shown", shown))
	}
}

func (e *Engine) updateQueueDepth(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	if depth, err := e.store.QueueDepth(ctx); err == nil {
		e.metrics.QueueDepth.Set(float64(depth))
	}
}

func (e *Engine) recordFiltered(reason, tag string) {
	if e.metrics != nil {
		e.metrics.NotificationsFiltered.WithLabelValues(reason).Inc()
	}
	e.publish(events.TypeNotificationFiltered, map[string]interface{}{"reason": reason, "tag": tag})
}

func (e *Engine) recordSyncFailure(op string, err error) {
	e.log.Warn("registry sync failed", zap.String("op", op), zap.Error(err))
	if e.metrics != nil {
		e.metrics.SyncFailures.WithLabelValues(op).Inc()
	}
}

func (e *Engine) setSubscribedMetric(subscribed bool) {
	if e.metrics == nil {
		return
	}
	if subscribed {
		e.metrics.Subscribed.Set(1)
	} else {
		e.metrics.Subscribed.Set(0)
	}
}

func (e *Engine) publish(t events.Type, payload interface{}) {
	e.bus.Publish(events.Event{
		Category: events.CategoryNotification,
		Type:     t,
		Payload:  payload,
	})
}
