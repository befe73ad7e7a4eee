package events

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// broadcastProject is the sentinel project id used by subscribers who
// want every project's events (the dashboard's all-projects view), the
// role the teacher's Target=="all" played.
const broadcastProject int64 = 0

// Subscription is one listener's channel plus its type filter.
type Subscription struct {
	Ch        chan Event
	Types     []Type
	ProjectID int64
}

// Store defines the interface for persisting events, implemented by
// internal/store for audit/replay of the dashboard's event feed.
type Store interface {
	Save(event *Event) error
	GetPending(projectID int64, types []Type) ([]*Event, error)
	MarkDelivered(eventID string) error
}

// Backpressure configuration: a slow subscriber gets a few retries
// before its event is dropped rather than stalling the publisher, since
// EventBus delivery is at-least-once, not guaranteed (spec §4.12).
const (
	MaxBackpressureRetries = 3
	BackpressureRetryDelay = 10 * time.Millisecond
)

// Bus is the process-local pub/sub described in spec §4.12.
type Bus struct {
	subscribers   map[int64][]*Subscription
	store         Store
	mu            sync.RWMutex
	droppedEvents uint64
	versions      map[string]int64
	versionsMu    sync.Mutex
}

// NewBus creates a bus, optionally backed by store for GetPending replay.
func NewBus(store Store) *Bus {
	return &Bus{
		subscribers: make(map[int64][]*Subscription),
		store:       store,
		versions:    make(map[string]int64),
	}
}

// Subscribe returns a channel receiving events for projectID (pass
// broadcastProject's value, 0, for every project), filtered to types
// (nil/empty means every type).
func (b *Bus) Subscribe(projectID int64, types []Type) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		Ch:        make(chan Event, 100),
		Types:     types,
		ProjectID: projectID,
	}
	b.subscribers[projectID] = append(b.subscribers[projectID], sub)
	return sub.Ch
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(projectID int64, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[projectID]
	if !exists {
		return
	}
	for i, sub := range subs {
		if sub.Ch == ch {
			close(sub.Ch)
			b.subscribers[projectID] = append(subs[:i], subs[i+1:]...)
			if len(b.subscribers[projectID]) == 0 {
				delete(b.subscribers, projectID)
			}
			return
		}
	}
}

// Publish assigns the next per-entity version, persists the event if a
// store is attached, and delivers it to every matching subscriber.
// Emission order for a given entity is monotonic in entity-version
// (spec §4.12), enforced here rather than trusted to the caller.
func (b *Bus) Publish(event *Event) {
	event.Version = b.nextVersion(event.EntityID)

	if b.store != nil {
		if err := b.store.Save(event); err != nil {
			log.Printf("[EVENTS] failed to persist event: type=%s project=%d id=%s: %v",
				event.Type, event.ProjectID, event.ID, err)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var targetSubs []*Subscription
	if event.ProjectID == broadcastProject {
		for _, subs := range b.subscribers {
			targetSubs = append(targetSubs, subs...)
		}
	} else {
		targetSubs = append(targetSubs, b.subscribers[event.ProjectID]...)
		targetSubs = append(targetSubs, b.subscribers[broadcastProject]...)
	}

	for _, sub := range targetSubs {
		if b.matchesTypes(event.Type, sub.Types) {
			b.sendWithBackpressure(sub, event)
		}
	}
}

func (b *Bus) nextVersion(entityID string) int64 {
	b.versionsMu.Lock()
	defer b.versionsMu.Unlock()
	b.versions[entityID]++
	return b.versions[entityID]
}

func (b *Bus) sendWithBackpressure(sub *Subscription, event *Event) {
	select {
	case sub.Ch <- *event:
		return
	default:
	}

	for retry := 1; retry <= MaxBackpressureRetries; retry++ {
		time.Sleep(BackpressureRetryDelay)
		select {
		case sub.Ch <- *event:
			return
		default:
		}
	}

	dropped := atomic.AddUint64(&b.droppedEvents, 1)
	log.Printf("[EVENTS] dropped event after %d retries: type=%s project=%d id=%s (total dropped: %d)",
		MaxBackpressureRetries, event.Type, event.ProjectID, event.ID, dropped)
}

// GetPendingEvents retrieves undelivered events from the store, if any.
func (b *Bus) GetPendingEvents(projectID int64, types []Type) ([]*Event, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.GetPending(projectID, types)
}

// MarkDelivered marks an event delivered so GetPendingEvents won't return it again.
func (b *Bus) MarkDelivered(eventID string) error {
	if b.store == nil {
		return nil
	}
	return b.store.MarkDelivered(eventID)
}

// DroppedEventCount reports how many events were dropped to a full subscriber channel.
func (b *Bus) DroppedEventCount() uint64 {
	return atomic.LoadUint64(&b.droppedEvents)
}

func (b *Bus) matchesTypes(eventType Type, types []Type) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == eventType {
			return true
		}
	}
	return false
}
