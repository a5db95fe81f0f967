package chat

import (
	"errors"
	"time"

	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

var (
	ErrBlankContent      = errors.New("chat: message content is blank")
	ErrContentTooLong    = errors.New("chat: message content exceeds limit")
	ErrRecipientNotFound = errors.New("chat: recipient not found")
	ErrListingNotFound   = errors.New("chat: listing not found")
	ErrAccessDenied      = errors.New("chat: conversation not allowed for this listing")
)

// MaxContentRunes bounds message content, counted in code points.
const MaxContentRunes = 1000

type MessageID string

// Message is the append-only unit of a conversation. The store assigns ID and
// CreatedAt on append; IDs sort in assignment order so they serve as a stable
// tie-break when two messages share a timestamp. Only the Read flag ever
// changes after append, and only from false to true.
type Message struct {
	ID        MessageID
	Sender    user.ID
	Recipient user.ID
	Listing   listings.ListingID
	Content   string
	CreatedAt time.Time
	Read      bool
}

// ConversationKey identifies a conversation: the unordered participant pair
// plus the listing being discussed. The same two users negotiating two
// different listings hold two distinct conversations.
type ConversationKey struct {
	Counterpart user.ID
	Listing     listings.ListingID
}

// ConversationSummary is the derived per-conversation view for one viewer.
type ConversationSummary struct {
	Counterpart user.ID
	Listing     listings.ListingID
	LastMessage Message
	UnreadCount int64
}
