// Package events provides a typed publish/subscribe bus for runtime events.
//
// Delivery ordering is guaranteed within a category: each category owns a
// single dispatch goroutine, so subscribers observe that category's events
// in publish order. No ordering is guaranteed across categories; consumers
// must not assume a runtime event and a loading event interleave in any
// particular way.
//
// Delivery to subscribers is best-effort: a slow subscriber loses its
// oldest buffered event rather than stalling the dispatcher. Domain
// invariants must never depend on bus delivery.
package events

import (
	"sync"
	"time"
)

// Category groups events that share an ordering guarantee
type Category string

const (
	CategoryRuntime      Category = "runtime"
	CategoryLoading      Category = "loading"
	CategoryNotification Category = "notification"
)

// Type identifies a specific event within a category
type Type string

const (
	// runtime
	TypeOnlineChanged    Type = "online_changed"
	TypeInstallAvailable Type = "install_available"
	TypeAppInstalled     Type = "app_installed"
	TypeUpdateAvailable  Type = "update_available"
	TypeWorkerUpdated    Type = "worker_updated"

	// loading
	TypeLoadStarted  Type = "load_started"
	TypeLoadProgress Type = "load_progress"
	TypeLoadComplete Type = "load_complete"
	TypeLoadFailed   Type = "load_failed"

	// notification
	TypeNotificationShown    Type = "notification_shown"
	TypeNotificationFiltered Type = "notification_filtered"
	TypeNotificationQueued   Type = "notification_queued"
	TypeSubscriptionChanged  Type = "subscription_changed"
	TypePreferencesChanged   Type = "preferences_changed"
)

// Event is a single bus message
type Event struct {
	Category Category    `json:"category"`
	Type     Type        `json:"type"`
	Payload  interface{} `json:"payload,omitempty"`
	At       time.Time   `json:"at"`
}

// Subscription receives events for one category until unsubscribed
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	cancel func()
	once   sync.Once
}

// Unsubscribe detaches the subscription; the channel is closed afterwards
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

type dispatcher struct {
	in   chan Event
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	done chan struct{}
}

// Bus routes events to per-category dispatchers
type Bus struct {
	mu          sync.RWMutex
	dispatchers map[Category]*dispatcher
	closed      bool
}

// NewBus creates a bus with dispatchers for the known categories
func NewBus() *Bus {
	b := &Bus{dispatchers: make(map[Category]*dispatcher)}
	for _, cat := range []Category{CategoryRuntime, CategoryLoading, CategoryNotification} {
		d := &dispatcher{
			in:   make(chan Event, 256),
			subs: make(map[*Subscription]struct{}),
			done: make(chan struct{}),
		}
		b.dispatchers[cat] = d
		go d.run()
	}
	return b
}

func (d *dispatcher) run() {
	for evt := range d.in {
		d.mu.Lock()
		for s := range d.subs {
			deliver(s.ch, evt)
		}
		d.mu.Unlock()
	}

	d.mu.Lock()
	for s := range d.subs {
		close(s.ch)
	}
	d.subs = make(map[*Subscription]struct{})
	d.mu.Unlock()
	close(d.done)
}

// deliver pushes evt without blocking; on a full buffer the oldest
// event is discarded to make room
func deliver(ch chan Event, evt Event) {
	select {
	case ch <- evt:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- evt:
	default:
	}
}

// Publish emits an event to its category's subscribers. The timestamp is
// filled if unset. Publishing to a closed bus is a no-op.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	d, ok := b.dispatchers[evt.Category]
	if !ok {
		return
	}
	select {
	case d.in <- evt:
	default:
		// dispatcher backlog full; drop rather than block the publisher
	}
}

// Subscribe registers an observer for one category. The buffer bounds how
// far a subscriber may lag before losing events.
func (b *Bus) Subscribe(cat Category, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.RLock()
	d, ok := b.dispatchers[cat]
	closed := b.closed
	b.mu.RUnlock()

	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch}

	if !ok || closed {
		sub.cancel = func() {}
		close(ch)
		return sub
	}

	d.mu.Lock()
	d.subs[sub] = struct{}{}
	d.mu.Unlock()

	sub.cancel = func() {
		d.mu.Lock()
		if _, live := d.subs[sub]; live {
			delete(d.subs, sub)
			close(ch)
		}
		d.mu.Unlock()
	}
	return sub
}

// Close shuts down all dispatchers and closes subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	dispatchers := make([]*dispatcher, 0, len(b.dispatchers))
	for _, d := range b.dispatchers {
		dispatchers = append(dispatchers, d)
	}
	b.mu.Unlock()

	for _, d := range dispatchers {
		close(d.in)
		<-d.done
	}
}
