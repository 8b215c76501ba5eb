package types

import "time"

// PermissionState is the notification permission state machine.
// Transitions are one-way: default -> granted or default -> denied.
// Denied is terminal for the session.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// Frequency controls notification delivery cadence
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// Valid reports whether f is a known frequency value
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// QuietHours is a time-of-day window during which delivery is suppressed.
// Start and End are "HH:MM" local time. A window with Start > End wraps
// past midnight. Boundaries are inclusive.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Preferences is the persisted notification preference record.
// Version supports optimistic-concurrency checks on save.
type Preferences struct {
	PatentAlerts         bool       `json:"patent_alerts"`
	SystemUpdates        bool       `json:"system_updates"`
	CollaborationInvites bool       `json:"collaboration_invites"`
	ReportReady          bool       `json:"report_ready"`
	MaintenanceNotices   bool       `json:"maintenance_notices"`
	Marketing            bool       `json:"marketing"`
	Frequency            Frequency  `json:"frequency"`
	QuietHours           QuietHours `json:"quiet_hours"`
	Version              int64      `json:"version"`
}

// DefaultPreferences returns the record created on first use
func DefaultPreferences() Preferences {
	return Preferences{
		PatentAlerts:         true,
		SystemUpdates:        true,
		CollaborationInvites: true,
		ReportReady:          true,
		MaintenanceNotices:   false,
		Marketing:            false,
		Frequency:            FrequencyImmediate,
		QuietHours: QuietHours{
			Enabled: false,
			Start:   "22:00",
			End:     "08:00",
		},
	}
}

// PreferencesPatch is a partial preference update; nil fields are untouched
type PreferencesPatch struct {
	PatentAlerts         *bool       `json:"patent_alerts,omitempty"`
	SystemUpdates        *bool       `json:"system_updates,omitempty"`
	CollaborationInvites *bool       `json:"collaboration_invites,omitempty"`
	ReportReady          *bool       `json:"report_ready,omitempty"`
	MaintenanceNotices   *bool       `json:"maintenance_notices,omitempty"`
	Marketing            *bool       `json:"marketing,omitempty"`
	Frequency            *Frequency  `json:"frequency,omitempty"`
	QuietHours           *QuietHours `json:"quiet_hours,omitempty"`
}

// SubscriptionKeys is push subscription key material
type SubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription binds a push endpoint to this device.
// At most one live subscription exists per device.
type Subscription struct {
	Endpoint    string           `json:"endpoint"`
	Keys        SubscriptionKeys `json:"keys"`
	UserID      string           `json:"user_id,omitempty"`
	DeviceID    string           `json:"device_id"`
	Preferences Preferences      `json:"preferences"`
}

// NotificationAction is an actionable button on a displayed notification
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is the platform display contract. Tag doubles as the
// de-duplication key and the category-filter input.
type Notification struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon,omitempty"`
	Badge              string                 `json:"badge,omitempty"`
	Image              string                 `json:"image,omitempty"`
	Tag                string                 `json:"tag,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	RequireInteraction bool                   `json:"require_interaction"`
	Silent             bool                   `json:"silent"`
	Actions            []NotificationAction   `json:"actions,omitempty"`
	Timestamp          int64                  `json:"timestamp,omitempty"` // unix millis
	Vibrate            []int                  `json:"vibrate,omitempty"`
}

// QueuedNotification is a pending delivery held in the durable queue
type QueuedNotification struct {
	Seq          int64        `json:"seq"`
	Notification Notification `json:"notification"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
}
