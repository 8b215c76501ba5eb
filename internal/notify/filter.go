package notify

import (
	"strings"
	"time"

	"github.com/innospot/runtime/internal/types"
)

// Filter reasons reported on suppressed deliveries
const (
	ReasonPermission = "permission"
	ReasonQuietHours = "quiet_hours"
	ReasonCategory   = "category"
)

// categoryGates maps tag keywords to their preference gate. Matching is
// substring-based: a tag containing "patent" anywhere is gated by the
// patent-alerts preference.
var categoryGates = []struct {
	keyword string
	allowed func(types.Preferences) bool
}{
	{"patent", func(p types.Preferences) bool { return p.PatentAlerts }},
	{"system", func(p types.Preferences) bool { return p.SystemUpdates }},
	{"collaboration", func(p types.Preferences) bool { return p.CollaborationInvites }},
	{"report", func(p types.Preferences) bool { return p.ReportReady }},
	{"maintenance", func(p types.Preferences) bool { return p.MaintenanceNotices }},
	{"marketing", func(p types.Preferences) bool { return p.Marketing }},
}

// allowedByCategories checks the notification tag against every category
// gate. Tags that match no keyword always pass.
func allowedByCategories(tag string, prefs types.Preferences) bool {
	for _, gate := range categoryGates {
		if strings.Contains(tag, gate.keyword) && !gate.allowed(prefs) {
			return false
		}
	}
	return true
}

// InQuietHours reports whether t falls inside the quiet window. Both
// boundaries are inclusive; a window whose start is later than its end
// wraps past midnight (22:00-08:00 suppresses 22:00 and 08:00 alike).
// Malformed boundaries disable the window rather than suppressing
// everything.
func InQuietHours(t time.Time, q types.QuietHours) bool {
	if !q.Enabled {
		return false
	}

	start, okStart := minutesOfDay(q.Start)
	end, okEnd := minutesOfDay(q.End)
	if !okStart || !okEnd {
		return false
	}

	now := t.Hour()*60 + t.Minute()

	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

// minutesOfDay parses "HH:MM" into minutes since midnight
func minutesOfDay(s string) (int, bool) {
	clock, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return clock.Hour()*60 + clock.Minute(), true
}

// Display defaults applied to notifications lacking explicit values
const (
	defaultIcon  = "/icons/icon-192x192.png"
	defaultBadge = "/icons/badge-72x72.png"
	defaultTag   = "innospot-notification"
)

// applyDefaults fills the display contract. Filtering happens before
// this step, so the fallback tag never reaches the category gates.
func applyDefaults(n types.Notification, now time.Time) types.Notification {
	if n.Icon == "" {
		n.Icon = defaultIcon
	}
	if n.Badge == "" {
		n.Badge = defaultBadge
	}
	if n.Tag == "" {
		n.Tag = defaultTag
	}
	if len(n.Actions) == 0 {
		n.Actions = []types.NotificationAction{
			{Action: "view", Title: "View Details", Icon: "/icons/view-action.png"},
			{Action: "dismiss", Title: "Dismiss", Icon: "/icons/dismiss-action.png"},
		}
	}
	if n.Timestamp == 0 {
		n.Timestamp = now.UnixMilli()
	}
	if len(n.Vibrate) == 0 {
		n.Vibrate = []int{200, 100, 200}
	}
	return n
}
