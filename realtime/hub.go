// Package realtime fans out change notifications for class discussions.
// Events are level-triggered: a subscriber that receives one re-fetches the
// thread, so dropping an event for a slow subscriber is harmless.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cppla/eduxp/metrics"
	"github.com/cppla/eduxp/utils"
)

// Tables whose changes are published.
const (
	TableDiscussions       = "discussions"
	TableDiscussionReplies = "discussion_replies"
)

// Op is the kind of change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event describes one row change in a class's discussion board.
type Event struct {
	Table    string `json:"table"`
	Op       Op     `json:"op"`
	ClassID  uint   `json:"class_id"`
	RecordID uint   `json:"record_id"`
}

// Publisher is what writers depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Subscriber receives events for one class until it is unsubscribed.
type Subscriber struct {
	ID      string
	ClassID uint
	ch      chan Event
}

// C is closed when the subscriber is removed.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Hub keeps the in-process subscribers, grouped by class.
type Hub struct {
	mu      sync.RWMutex
	classes map[uint]map[string]*Subscriber
	buffer  int
}

// NewHub returns a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{classes: make(map[uint]map[string]*Subscriber), buffer: buffer}
}

// Subscribe registers a new subscriber for classID.
func (h *Hub) Subscribe(classID uint) *Subscriber {
	s := &Subscriber{ID: uuid.NewString(), ClassID: classID, ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	if h.classes[classID] == nil {
		h.classes[classID] = make(map[string]*Subscriber)
	}
	h.classes[classID][s.ID] = s
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Inc()
	return s
}

// Unsubscribe removes s and closes its channel. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	subs, ok := h.classes[s.ClassID]
	if !ok || subs[s.ID] != s {
		h.mu.Unlock()
		return
	}
	delete(subs, s.ID)
	if len(subs) == 0 {
		delete(h.classes, s.ClassID)
	}
	close(s.ch)
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Dec()
}

// Publish delivers e to this process's subscribers of e.ClassID.
func (h *Hub) Publish(_ context.Context, e Event) {
	h.Deliver(e)
}

// Deliver hands e to every subscriber of its class without blocking. A full
// buffer drops the event for that subscriber only.
func (h *Hub) Deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.classes[e.ClassID] {
		select {
		case s.ch <- e:
		default:
			metrics.RealtimeDropped.Inc()
			utils.Sugar.Debugw("realtime event dropped", "subscriber", id, "class_id", e.ClassID)
		}
	}
}

// Count returns the number of subscribers for classID.
func (h *Hub) Count(classID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.classes[classID])
}

// Close removes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	n := 0
	for classID, subs := range h.classes {
		for _, s := range subs {
			close(s.ch)
			n++
		}
		delete(h.classes, classID)
	}
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Sub(float64(n))
}
