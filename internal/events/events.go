// Package events carries change notifications from the cache to its
// consumers. Delivery is fire-and-forget.
package events

import "sync"

type Kind string

const (
	FolderChanged   Kind = "folder.changed"
	FolderAdded     Kind = "folder.added"
	FolderDeleted   Kind = "folder.deleted"
	FolderRefreshed Kind = "folder.refreshed"

	MessageChanged Kind = "message.changed"
	MessageAdded   Kind = "message.added"
	MessageDeleted Kind = "message.deleted"

	ConversationChanged Kind = "conversation.changed"
	ConversationAdded   Kind = "conversation.added"
	ConversationDeleted Kind = "conversation.deleted"

	RuleAdded        Kind = "rule.added"
	DirectoryChanged Kind = "directory.changed"
	ProfileChanged   Kind = "profile.changed"

	SyncStarted   Kind = "sync.started"
	SyncCompleted Kind = "sync.completed"
)

// Event names what changed. ID is the entity's local identifier where it
// has one; Name carries a forum or rule name otherwise.
type Event struct {
	Kind Kind
	ID   int64
	Name string
	Err  error
}

// Sink receives events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Bus fans events out to subscribers. A subscriber whose buffer is full
// misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Recorder keeps every published event. It is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
