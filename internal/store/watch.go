package store

import "sync"

// EventType is the kind of change a watcher is told about.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// Event is emitted after a mutation has been committed.
type Event struct {
	Type         EventType `json:"type"`
	ResourceType string    `json:"resourceType"`
	ID           string    `json:"id"`
	Object       Resource  `json:"object"`
}

// watcher is an internal subscription to store mutations.
type watcher struct {
	resourceType string
	ch           chan Event
}

// watchers fans events out to subscribers within this process. Changes made
// by other processes sharing the backend are not observed.
type watchers struct {
	mu   sync.Mutex
	subs []*watcher
}

// Watch returns a channel that emits an event for every committed mutation
// of resourceType, or of every type if resourceType is empty. The returned
// cancel function removes the watcher and closes the channel.
func (s *Store) Watch(resourceType string) (<-chan Event, func()) {
	w := &watcher{
		resourceType: resourceType,
		ch:           make(chan Event, 64),
	}

	s.watch.mu.Lock()
	s.watch.subs = append(s.watch.subs, w)
	s.watch.mu.Unlock()

	cancel := func() {
		s.watch.mu.Lock()
		defer s.watch.mu.Unlock()
		for i, existing := range s.watch.subs {
			if existing == w {
				s.watch.subs = append(s.watch.subs[:i], s.watch.subs[i+1:]...)
				close(w.ch)
				return
			}
		}
	}

	return w.ch, cancel
}

// notify sends the event to every watcher of its resource type.
func (w *watchers) notify(evt Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subs {
		if sub.resourceType != "" && sub.resourceType != evt.ResourceType {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop event if the watcher is not consuming fast enough.
		}
	}
}

// closeAll closes every subscription.
func (w *watchers) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subs {
		close(sub.ch)
	}
	w.subs = nil
}
