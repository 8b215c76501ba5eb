package notify

import (
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/innospot/runtime/internal/types"
)

// digestSchedules maps non-immediate frequencies to cron expressions
var digestSchedules = map[types.Frequency]string{
	types.FrequencyHourly: "@hourly",
	types.FrequencyDaily:  "@daily",
	types.FrequencyWeekly: "@weekly",
}

// digest drains the notification queue on the cadence the user picked.
// Immediate mode has no schedule; deliveries bypass the queue entirely.
type digest struct {
	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	drain func()
}

func newDigest(drain func()) *digest {
	return &digest{
		cron:  cron.New(),
		drain: drain,
	}
}

// apply rearms the schedule for the given frequency, replacing any
// previous entry. Unknown or immediate frequencies clear the schedule.
func (d *digest) apply(freq types.Frequency) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.entry != 0 {
		d.cron.Remove(d.entry)
		d.entry = 0
	}

	spec, ok := digestSchedules[freq]
	if !ok {
		return
	}

	// AddFunc only fails on a bad spec; ours are the fixed descriptors
	entry, err := d.cron.AddFunc(spec, d.drain)
	if err != nil {
		return
	}
	d.entry = entry
	d.cron.Start()
}

func (d *digest) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cron.Stop()
}
