package bots

import (
	"sync"

	"github.com/playroomhq/playroom/internal/logger"
)

// EventKind classifies a change-feed notification.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is one roster change notification. Delivery is at-least-once and
// carries the record as of the write; consumers must tolerate duplicates and
// events for records they do not know about.
type Event struct {
	Kind   EventKind
	Record Record
}

// Subscription is a registered change-feed listener. Events arrive on C until
// Close is called.
type Subscription struct {
	C    chan Event
	feed *Feed
	id   int64
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.feed.unsubscribe(s.id)
}

// Feed fans roster change events out to subscribers.
type Feed struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*Subscription
}

// NewFeed creates an empty change feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int64]*Subscription)}
}

// Subscribe registers a new listener.
func (f *Feed) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub := &Subscription{
		C:    make(chan Event, 64),
		feed: f,
		id:   f.nextID,
	}
	f.subs[sub.id] = sub
	return sub
}

func (f *Feed) unsubscribe(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(sub.C)
	}
}

// Publish delivers an event to every current subscriber. Sends never block;
// a subscriber that has fallen behind misses the event and is expected to
// resync with a full load.
func (f *Feed) Publish(evt Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case sub.C <- evt:
		default:
			logger.Warnf("[bots] feed subscriber %d full; dropping %s for record %d", sub.id, evt.Kind, evt.Record.ID)
		}
	}
}
