// Package platform defines the surface the runtime needs from its host.
//
// The browser shell exposes these capabilities through a thin page-side
// shim; internal/platform/bridge implements them over a WebSocket control
// channel. Tests substitute in-memory fakes.
//
// Capability absence is reported with ErrUnsupported; components are
// expected to degrade to no-ops rather than fail startup.
package platform

import (
	"context"
	"errors"

	"github.com/innospot/runtime/internal/types"
)

// ErrUnsupported marks a capability the host platform does not provide
var ErrUnsupported = errors.New("platform: capability unsupported")

// ErrDetached is returned while no host shim is connected
var ErrDetached = errors.New("platform: host not attached")

// InstallPrompt is the deferred one-shot install prompt handle.
// Showing it consumes it; the platform never honors a second Show.
type InstallPrompt interface {
	Show(ctx context.Context) (types.PromptOutcome, error)
}

// Registration is a background-script registration handle
type Registration interface {
	States(ctx context.Context) (types.WorkerStates, error)
	// Update asks the platform to re-fetch the script and install a new
	// version if the artifact changed
	Update(ctx context.Context) error
	// PostMessage sends a control message to the waiting worker
	PostMessage(ctx context.Context, msg map[string]interface{}) error
	// RegisterSync registers a background sync tag
	RegisterSync(ctx context.Context, tag string) error
}

// Runtime is the installable-app platform surface
type Runtime interface {
	RegisterWorker(ctx context.Context, scriptURL, scope string) (Registration, error)
	// Standalone reports whether the app runs installed (standalone or
	// fullscreen display mode)
	Standalone(ctx context.Context) (bool, error)
	Reload(ctx context.Context) error
}

// RawSubscription is push key material as the platform hands it over
type RawSubscription struct {
	Endpoint string `json:"endpoint"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Push manages the platform push subscription
type Push interface {
	Subscribe(ctx context.Context, applicationServerKey []byte) (*RawSubscription, error)
	Unsubscribe(ctx context.Context) error
	CurrentSubscription(ctx context.Context) (*RawSubscription, error)
}

// Permissions exposes the notification permission state machine
type Permissions interface {
	RequestPermission(ctx context.Context) (types.PermissionState, error)
	Permission(ctx context.Context) (types.PermissionState, error)
}

// Notifier displays notifications through the platform
type Notifier interface {
	Show(ctx context.Context, n types.Notification) error
	Active(ctx context.Context) ([]types.Notification, error)
	CloseAll(ctx context.Context) error
}

// Sampler reads network and device signals
type Sampler interface {
	Network(ctx context.Context) (types.NetworkProfile, error)
	Device(ctx context.Context) (types.DeviceProfile, error)
}

// EventKind identifies an unsolicited platform event
type EventKind string

const (
	EventOnline              EventKind = "online"
	EventOffline             EventKind = "offline"
	EventBeforeInstallPrompt EventKind = "beforeinstallprompt"
	EventAppInstalled        EventKind = "appinstalled"
	EventWorkerStateChange   EventKind = "workerstatechange"
	EventControllerChange    EventKind = "controllerchange"
	EventConnectionChange    EventKind = "connectionchange"
	EventVisible             EventKind = "visible"
)

// Event is an unsolicited platform signal. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind    EventKind
	Prompt  InstallPrompt         // beforeinstallprompt
	States  *types.WorkerStates   // workerstatechange
	Network *types.NetworkProfile // connectionchange
}

// Handler receives platform events. Events of the same kind arrive in
// emission order; nothing is guaranteed across kinds.
type Handler func(Event)

// Events lets components observe unsolicited platform signals
type Events interface {
	// OnEvent registers a handler and returns its removal func
	OnEvent(h Handler) (remove func())
}

// Platform aggregates every capability the runtime consumes
type Platform interface {
	Runtime
	Push
	Permissions
	Notifier
	Sampler
	Events
}
