package events

import (
	"sync"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

const subscriberBuffer = 16

// Hub fans session change events out to live subscribers of the same user,
// so a second client or tab converges without a manual refresh.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint]map[chan model.SessionEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint]map[chan model.SessionEvent]struct{})}
}

// Subscribe returns a receive channel for one user's events and a cancel
// function the caller must invoke when done.
func (h *Hub) Subscribe(userID uint) (<-chan model.SessionEvent, func()) {
	ch := make(chan model.SessionEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan model.SessionEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its user. A subscriber
// that cannot keep up loses events rather than blocking the feed; it will
// resync on its next full list load.
func (h *Hub) Publish(ev model.SessionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
