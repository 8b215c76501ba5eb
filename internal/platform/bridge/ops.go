package bridge

import (
	"context"
	"encoding/base64"

	"github.com/innospot/runtime/internal/platform"
	"github.com/innospot/runtime/internal/types"
)

// registration is the shim's single page registration handle
type registration struct {
	b *Bridge
}

func (r *registration) States(ctx context.Context) (types.WorkerStates, error) {
	var out types.WorkerStates
	err := r.b.call(ctx, "worker.states", nil, &out)
	return out, err
}

func (r *registration) Update(ctx context.Context) error {
	return r.b.call(ctx, "worker.update", nil, nil)
}

func (r *registration) PostMessage(ctx context.Context, msg map[string]interface{}) error {
	return r.b.call(ctx, "worker.postMessage", map[string]interface{}{"message": msg}, nil)
}

func (r *registration) RegisterSync(ctx context.Context, tag string) error {
	return r.b.call(ctx, "worker.registerSync", map[string]interface{}{"tag": tag}, nil)
}

// RegisterWorker registers the background script at the given scope
func (b *Bridge) RegisterWorker(ctx context.Context, scriptURL, scope string) (platform.Registration, error) {
	params := map[string]interface{}{
		"script_url": scriptURL,
		"scope":      scope,
	}
	if err := b.call(ctx, "runtime.register", params, nil); err != nil {
		return nil, err
	}
	return &registration{b: b}, nil
}

// Standalone reports whether the app runs in an installed display mode
func (b *Bridge) Standalone(ctx context.Context) (bool, error) {
	var out struct {
		Standalone bool `json:"standalone"`
	}
	if err := b.call(ctx, "runtime.standalone", nil, &out); err != nil {
		return false, err
	}
	return out.Standalone, nil
}

// Reload asks the shim to reload the page
func (b *Bridge) Reload(ctx context.Context) error {
	return b.call(ctx, "runtime.reload", nil, nil)
}

// Subscribe creates a push subscription bound to the application server key
func (b *Bridge) Subscribe(ctx context.Context, applicationServerKey []byte) (*platform.RawSubscription, error) {
	params := map[string]interface{}{
		"application_server_key": base64.RawURLEncoding.EncodeToString(applicationServerKey),
	}
	var out platform.RawSubscription
	if err := b.call(ctx, "push.subscribe", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unsubscribe revokes the platform push subscription
func (b *Bridge) Unsubscribe(ctx context.Context) error {
	return b.call(ctx, "push.unsubscribe", nil, nil)
}

// CurrentSubscription returns the existing push subscription, or nil when
// none exists
func (b *Bridge) CurrentSubscription(ctx context.Context) (*platform.RawSubscription, error) {
	var out *platform.RawSubscription
	if err := b.call(ctx, "push.current", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestPermission asks the user for notification permission
func (b *Bridge) RequestPermission(ctx context.Context) (types.PermissionState, error) {
	var out struct {
		State types.PermissionState `json:"state"`
	}
	if err := b.call(ctx, "permissions.request", nil, &out); err != nil {
		return types.PermissionDefault, err
	}
	return out.State, nil
}

// Permission reads the current notification permission state
func (b *Bridge) Permission(ctx context.Context) (types.PermissionState, error) {
	var out struct {
		State types.PermissionState `json:"state"`
	}
	if err := b.call(ctx, "permissions.current", nil, &out); err != nil {
		return types.PermissionDefault, err
	}
	return out.State, nil
}

// Show displays a notification through the platform
func (b *Bridge) Show(ctx context.Context, n types.Notification) error {
	return b.call(ctx, "notify.show", map[string]interface{}{"notification": n}, nil)
}

// Active lists currently displayed notifications
func (b *Bridge) Active(ctx context.Context) ([]types.Notification, error) {
	var out struct {
		Notifications []types.Notification `json:"notifications"`
	}
	if err := b.call(ctx, "notify.active", nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// CloseAll closes every displayed notification
func (b *Bridge) CloseAll(ctx context.Context) error {
	return b.call(ctx, "notify.closeAll", nil, nil)
}

// Network samples the connection information surface
func (b *Bridge) Network(ctx context.Context) (types.NetworkProfile, error) {
	var out types.NetworkProfile
	err := b.call(ctx, "sampler.network", nil, &out)
	return out, err
}

// Device samples device capability signals
func (b *Bridge) Device(ctx context.Context) (types.DeviceProfile, error) {
	var out types.DeviceProfile
	err := b.call(ctx, "sampler.device", nil, &out)
	return out, err
}
