package chat

import (
	"context"
	"time"

	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

// Pair is an unordered participant pair; queries match messages flowing in
// either direction between the two users.
type Pair struct {
	A user.ID
	B user.ID
}

// Filter is the composable predicate passed to message queries. Zero-valued
// fields are ignored.
type Filter struct {
	// Between restricts to messages exchanged between the two users, in
	// either direction.
	Between Pair
	// Listing restricts to one conversation's listing.
	Listing listings.ListingID
	// After keeps only messages with CreatedAt strictly later than this
	// instant. Used by the poll path with the client-held cursor.
	After time.Time
	// Ascending orders by (CreatedAt, ID) ascending; the default is
	// CreatedAt descending with ID ascending as tie-break, which keeps
	// pagination deterministic when timestamps collide.
	Ascending bool
}

// Pageable selects one page of an ordered result. Size <= 0 disables
// pagination and returns the full ordered result.
type Pageable struct {
	Page int
	Size int
}

func (p Pageable) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	return p.Page * p.Size
}

// MessagePage is one page of messages plus the total match count.
type MessagePage struct {
	Items []Message
	Page  int
	Size  int
	Total int64
}

// SummaryPage is one page of conversation summaries.
type SummaryPage struct {
	Items []ConversationSummary
	Page  int
	Size  int
	Total int64
}

// Repository is the message store. Messages are append-only; the only
// mutation is the conditional bulk read-flag update in MarkRead.
type Repository interface {
	// Append persists msg, assigning ID and CreatedAt. IDs and timestamps
	// are monotonic per store.
	Append(ctx context.Context, msg *Message) error

	// MarkRead flips Read to true on every unread message addressed to
	// recipient from counterpart about listing, as one conditional bulk
	// update, and reports how many rows changed. Idempotent.
	MarkRead(ctx context.Context, recipient, counterpart user.ID, listing listings.ListingID) (int64, error)

	// List returns messages matching f, ordered as f dictates.
	List(ctx context.Context, f Filter, page Pageable) (MessagePage, error)

	// ListConversations groups every message involving viewer by
	// (counterpart, listing) and derives last message and unread count per
	// group, ordered by last activity descending. One grouped query, not a
	// per-conversation fan-out.
	ListConversations(ctx context.Context, viewer user.ID, page Pageable) (SummaryPage, error)
}
