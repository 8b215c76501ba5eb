// Package id provides ULID generation for runtime identifiers.
//
// IDs are prefixed by kind (dev_*, sub_*, ntf_*) so log lines stay readable,
// and lexicographically sortable so stored rows order by creation time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DeviceID identifies this installation, generated once and persisted
type DeviceID string

// SubscriptionID identifies a push subscription
type SubscriptionID string

// NotificationID identifies a queued or displayed notification
type NotificationID string

const (
	devicePrefix       = "dev"
	subscriptionPrefix = "sub"
	notificationPrefix = "ntf"
)

// Generator produces prefixed ULIDs from a shared entropy source
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator creates a generator with monotonic crypto entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

var defaultGen = NewGenerator()

func (g *Generator) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return fmt.Sprintf("%s_%s", prefix, strings.ToLower(u.String()))
}

// NewDevice generates a device ID
func NewDevice() DeviceID { return DeviceID(defaultGen.next(devicePrefix)) }

// NewSubscription generates a subscription ID
func NewSubscription() SubscriptionID {
	return SubscriptionID(defaultGen.next(subscriptionPrefix))
}

// NewNotification generates a notification ID
func NewNotification() NotificationID {
	return NotificationID(defaultGen.next(notificationPrefix))
}

// IsDevice reports whether s carries the device prefix
func IsDevice(s string) bool { return strings.HasPrefix(s, devicePrefix+"_") }
