package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/dto"
	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// ChatHandler bridges HTTP with the messaging core. The authenticated
// principal is always one side of every query; the counterpart and listing
// arrive as parameters.
type ChatHandler struct {
	Chat   *chatservice.Service
	Logger *slog.Logger
}

// ListMyConversations returns the current user's conversations, newest
// activity first, with unread counts.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	page := parsePageable(c, 20)

	conversations, err := h.Chat.ListConversations(c.Request.Context(), p.ID, page)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", string(p.ID))
		return
	}
	collection := dto.ConversationList{
		Items: make([]dto.ConversationSummary, 0, len(conversations.Items)),
		Page:  conversations.Page,
		Size:  conversations.Size,
		Total: conversations.Total,
	}
	for _, conv := range conversations.Items {
		collection.Items = append(collection.Items, dto.ConversationSummary{
			Counterpart: dto.Counterpart{
				ID:          string(conv.Counterpart.ID),
				DisplayName: conv.Counterpart.DisplayName,
				AvatarURL:   conv.Counterpart.AvatarURL,
			},
			ListingID:    string(conv.Listing.ID),
			ListingTitle: conv.Listing.Title,
			UnreadCount:  conv.UnreadCount,
			LastMessage: dto.LastMessage{
				Content:         conv.LastMessage.Content,
				Timestamp:       conv.LastMessage.CreatedAt,
				FromCurrentUser: conv.LastMessage.Sender == p.ID,
			},
		})
	}
	c.JSON(http.StatusOK, collection)
}

// ListMessages returns one conversation's messages newest-first, paged.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	counterpart, listing, ok := conversationParams(c)
	if !ok {
		return
	}
	page := parsePageable(c, 50)

	messages, err := h.Chat.History(c.Request.Context(), p.ID, counterpart, listing, page)
	if err != nil {
		h.respondChatError(c, err, "list messages", "user_id", string(p.ID), "counterpart_id", string(counterpart))
		return
	}
	collection := dto.ChatMessageList{
		Items: make([]dto.ChatMessage, 0, len(messages.Items)),
		Page:  messages.Page,
		Size:  messages.Size,
		Total: messages.Total,
	}
	for _, msg := range messages.Items {
		collection.Items = append(collection.Items, toChatMessage(msg))
	}
	c.JSON(http.StatusOK, collection)
}

// PollMessages returns messages strictly newer than the client's cursor,
// oldest first. An empty feed returns immediately; clients retry on their
// own interval.
func (h ChatHandler) PollMessages(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	counterpart, listing, ok := conversationParams(c)
	if !ok {
		return
	}
	since := time.Time{}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
			return
		}
		since = parsed
	}

	messages, err := h.Chat.Since(c.Request.Context(), p.ID, counterpart, listing, since)
	if err != nil {
		h.respondChatError(c, err, "poll messages", "user_id", string(p.ID), "counterpart_id", string(counterpart))
		return
	}
	feed := dto.MessageFeed{Items: make([]dto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		feed.Items = append(feed.Items, toChatMessage(msg))
	}
	c.JSON(http.StatusOK, feed)
}

// SendMessage posts a message about a listing.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ListingID = strings.TrimSpace(req.ListingID)
	req.RecipientID = strings.TrimSpace(req.RecipientID)
	if req.ListingID == "" || req.RecipientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing_id and recipient_id are required"})
		return
	}

	message, err := h.Chat.Send(
		c.Request.Context(),
		p.ID,
		domainuser.ID(req.RecipientID),
		domainlistings.ListingID(req.ListingID),
		req.Content,
	)
	if err != nil {
		h.respondChatError(c, err, "send message", "user_id", string(p.ID), "listing_id", req.ListingID)
		return
	}
	c.JSON(http.StatusCreated, toChatMessage(*message))
}

// MarkRead marks every unread message from the counterpart in one
// conversation as read.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.CounterpartID = strings.TrimSpace(req.CounterpartID)
	req.ListingID = strings.TrimSpace(req.ListingID)
	if req.CounterpartID == "" || req.ListingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "counterpart_id and listing_id are required"})
		return
	}

	updated, err := h.Chat.MarkRead(
		c.Request.Context(),
		p.ID,
		domainuser.ID(req.CounterpartID),
		domainlistings.ListingID(req.ListingID),
	)
	if err != nil {
		h.respondChatError(c, err, "mark read", "user_id", string(p.ID), "counterpart_id", req.CounterpartID)
		return
	}
	c.JSON(http.StatusOK, dto.MarkReadAck{Updated: updated, ReadAt: time.Now().UTC()})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, domainchat.ErrBlankContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is required"})
	case errors.Is(err, domainchat.ErrContentTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is too long"})
	case errors.Is(err, domainchat.ErrRecipientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
	case errors.Is(err, domainchat.ErrListingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
	case errors.Is(err, domainchat.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation not allowed"})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toChatMessage(msg domainchat.Message) dto.ChatMessage {
	return dto.ChatMessage{
		ID:          string(msg.ID),
		SenderID:    string(msg.Sender),
		RecipientID: string(msg.Recipient),
		ListingID:   string(msg.Listing),
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
		Read:        msg.Read,
	}
}

func conversationParams(c *gin.Context) (domainuser.ID, domainlistings.ListingID, bool) {
	counterpart := strings.TrimSpace(c.Query("counterpart_id"))
	listing := strings.TrimSpace(c.Query("listing_id"))
	if counterpart == "" || listing == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "counterpart_id and listing_id are required"})
		return "", "", false
	}
	return domainuser.ID(counterpart), domainlistings.ListingID(listing), true
}

func parsePageable(c *gin.Context, defaultSize int) domainchat.Pageable {
	return domainchat.Pageable{
		Page: parseNonNegativeInt(c.Query("page"), 0),
		Size: parsePositiveInt(c.Query("size"), defaultSize),
	}
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func parseNonNegativeInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return def
	}
	return value
}

var _ ChatHTTP = (*ChatHandler)(nil)
