package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventConnected     EventType = "connected"
	EventTreeChanged   EventType = "tree-changed"
	EventChatUpdated   EventType = "chat-updated"
	EventActiveChanged EventType = "active-changed"
)

// Event represents a notification event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Service fans store change events out to SSE subscribers
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	done        chan struct{}
	closed      bool
}

// NewService creates a new notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
		done:        make(chan struct{}),
	}
}

// Subscribe creates a new subscription channel
// Returns the event channel and an unsubscribe function
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	s.mu.Lock()
	if s.closed {
		close(ch)
	} else {
		s.subscribers[ch] = struct{}{}
	}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Only close if the channel is still in subscribers map
		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Done is closed when the service shuts down
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Notify broadcasts an event to all subscribers
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// NotifyTreeChanged sends a tree-changed event
// Used when nodes are created, renamed, moved or deleted, and after imports
func (s *Service) NotifyTreeChanged(path string, operation string) {
	s.Notify(Event{
		Type: EventTreeChanged,
		Path: path,
		Data: map[string]any{
			"operation": operation,
		},
	})
}

// NotifyChatUpdated sends a chat-updated event
// Used when a chat's messages or settings change
func (s *Service) NotifyChatUpdated(path string, operation string) {
	s.Notify(Event{
		Type: EventChatUpdated,
		Path: path,
		Data: map[string]any{
			"operation": operation,
		},
	})
}

// NotifyActiveChanged sends an active-changed event; an empty path means nothing is selected
func (s *Service) NotifyActiveChanged(path string) {
	s.Notify(Event{
		Type: EventActiveChanged,
		Path: path,
	})
}

// Shutdown closes the notification service
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)

	// Close all subscriber channels
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
