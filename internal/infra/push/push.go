// Package push delivers new-message and read-receipt events to a per-user
// destination. Delivery is at-most-once: a disconnected client misses
// events and recovers them through the poll path.
package push

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

type EventType string

const (
	EventMessage EventType = "message"
	EventRead    EventType = "read"
)

// Envelope is the JSON payload published to a user's channel.
type Envelope struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Message   *MessageEvent `json:"message,omitempty"`
	Receipt   *ReceiptEvent `json:"receipt,omitempty"`
	EmittedAt time.Time     `json:"emitted_at"`
}

// MessageEvent mirrors a persisted message.
type MessageEvent struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	ListingID   string    `json:"listing_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReceiptEvent tells the counterpart their messages were seen.
type ReceiptEvent struct {
	ReaderID      string    `json:"reader_id"`
	CounterpartID string    `json:"counterpart_id"`
	ListingID     string    `json:"listing_id"`
	ReadAt        time.Time `json:"read_at"`
}

func newMessageEnvelope(msg domainchat.Message) Envelope {
	return Envelope{
		ID:   uuid.NewString(),
		Type: EventMessage,
		Message: &MessageEvent{
			ID:          string(msg.ID),
			SenderID:    string(msg.Sender),
			RecipientID: string(msg.Recipient),
			ListingID:   string(msg.Listing),
			Content:     msg.Content,
			CreatedAt:   msg.CreatedAt,
		},
		EmittedAt: time.Now().UTC(),
	}
}

func newReceiptEnvelope(receipt chatservice.ReadReceipt) Envelope {
	return Envelope{
		ID:   uuid.NewString(),
		Type: EventRead,
		Receipt: &ReceiptEvent{
			ReaderID:      string(receipt.Reader),
			CounterpartID: string(receipt.Counterpart),
			ListingID:     string(receipt.Listing),
			ReadAt:        receipt.ReadAt,
		},
		EmittedAt: time.Now().UTC(),
	}
}

// DecodeEnvelope parses a published payload.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("push: decode envelope: %w", err)
	}
	return env, nil
}

// ToMessage converts a message event back into the domain shape so feed
// clients can fold pushed and polled messages through the same code path.
func (e MessageEvent) ToMessage() domainchat.Message {
	return domainchat.Message{
		ID:        domainchat.MessageID(e.ID),
		Sender:    user.ID(e.SenderID),
		Recipient: user.ID(e.RecipientID),
		Listing:   listings.ListingID(e.ListingID),
		Content:   e.Content,
		CreatedAt: e.CreatedAt,
	}
}
