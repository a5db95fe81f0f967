package push

import (
	"context"
	"sync"

	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/user"
)

const defaultSubscriberBuffer = 16

// Hub fans envelopes out to in-process subscribers, one buffered channel per
// subscription. Sends never block: a subscriber that falls behind drops
// events, matching the at-most-once contract of the push path.
type Hub struct {
	mu   sync.RWMutex
	subs map[user.ID]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[user.ID]map[*Subscription]struct{})}
}

// Subscription receives one user's events on C until Close.
type Subscription struct {
	C    chan Envelope
	hub  *Hub
	user user.ID
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set, ok := s.hub.subs[s.user]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.user)
			}
		}
		s.hub.mu.Unlock()
		close(s.C)
	})
}

// Subscribe registers a listener for one user's channel.
func (h *Hub) Subscribe(id user.ID, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &Subscription{C: make(chan Envelope, buffer), hub: h, user: id}
	h.mu.Lock()
	set, ok := h.subs[id]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[id] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) PublishMessage(ctx context.Context, msg domainchat.Message) error {
	h.publish(msg.Recipient, newMessageEnvelope(msg))
	return nil
}

func (h *Hub) PublishReadReceipt(ctx context.Context, receipt chatservice.ReadReceipt) error {
	h.publish(receipt.Counterpart, newReceiptEnvelope(receipt))
	return nil
}

func (h *Hub) publish(id user.ID, env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[id] {
		select {
		case sub.C <- env:
		default:
			// subscriber is saturated; drop rather than block the sender
		}
	}
}

var _ chatservice.Publisher = (*Hub)(nil)
