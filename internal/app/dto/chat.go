package dto

import "time"

// Counterpart is the other participant's profile as rendered next to a
// conversation.
type Counterpart struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// LastMessage previews the newest message of a conversation.
type LastMessage struct {
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	FromCurrentUser bool      `json:"from_current_user"`
}

// ConversationSummary describes one conversation for the current user.
type ConversationSummary struct {
	Counterpart  Counterpart `json:"counterpart"`
	ListingID    string      `json:"listing_id"`
	ListingTitle string      `json:"listing_title"`
	UnreadCount  int64       `json:"unread_count"`
	LastMessage  LastMessage `json:"last_message"`
}

// ConversationList is a paginated collection of summaries.
type ConversationList struct {
	Items []ConversationSummary `json:"items"`
	Page  int                   `json:"page"`
	Size  int                   `json:"size"`
	Total int64                 `json:"total"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	ListingID   string    `json:"listing_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	Read        bool      `json:"read"`
}

// ChatMessageList is a paginated message list, newest first.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Total int64         `json:"total"`
}

// MessageFeed is the poll response: messages strictly newer than the
// client's cursor, oldest first.
type MessageFeed struct {
	Items []ChatMessage `json:"items"`
}

// SendMessageRequest posts a new message about a listing.
type SendMessageRequest struct {
	ListingID   string `json:"listing_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

// MarkReadRequest marks a conversation's inbound messages as read.
type MarkReadRequest struct {
	CounterpartID string `json:"counterpart_id"`
	ListingID     string `json:"listing_id"`
}

// MarkReadAck reports the outcome of a mark-read call.
type MarkReadAck struct {
	Updated int64     `json:"updated"`
	ReadAt  time.Time `json:"read_at"`
}
