package chat

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// Publisher is the push side of delivery. Both calls are best-effort: a
// failure is logged by the caller and never rolls back persistence.
type Publisher interface {
	PublishMessage(ctx context.Context, msg domainchat.Message) error
	PublishReadReceipt(ctx context.Context, receipt ReadReceipt) error
}

// ReadReceipt notifies a counterpart that their messages were read.
type ReadReceipt struct {
	Reader      domainuser.ID
	Counterpart domainuser.ID
	Listing     domainlistings.ListingID
	ReadAt      time.Time
}

// Guard decides whether two users may exchange messages about a listing: the
// listing must exist and its seller must be exactly one side of the pair.
// Any user may contact a seller about their listing; two users with no stake
// in the listing have no conversation through this channel. Consulted on
// every send, uncached.
type Guard struct {
	Listings domainlistings.Directory
}

func (g Guard) CanConverse(ctx context.Context, sender, recipient domainuser.ID, listingID domainlistings.ListingID) error {
	if sender == recipient {
		return domainchat.ErrAccessDenied
	}
	listing, err := g.Listings.ByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			return domainchat.ErrListingNotFound
		}
		return err
	}
	if listing.Seller != sender && listing.Seller != recipient {
		return domainchat.ErrAccessDenied
	}
	return nil
}

// ConversationView is a summary enriched with counterpart and listing data
// for rendering.
type ConversationView struct {
	Counterpart domainuser.User
	Listing     domainlistings.Listing
	LastMessage domainchat.Message
	UnreadCount int64
}

// ConversationPage is one page of conversation views.
type ConversationPage struct {
	Items []ConversationView
	Page  int
	Size  int
	Total int64
}

// Service is the messaging core: it validates and persists sends, flips read
// state, and derives conversation lists. The message store is the single
// owner of message rows; the push path is a latency optimization layered on
// top of it.
type Service struct {
	Messages  domainchat.Repository
	Users     domainuser.Directory
	Guard     Guard
	Publisher Publisher
	Logger    *slog.Logger
}

// Send validates, authorizes and persists a message, then pushes it to the
// recipient's channel. Validation happens before any write; a push failure
// is swallowed because the message is already durable and the poll path will
// deliver it.
func (s *Service) Send(ctx context.Context, sender, recipient domainuser.ID, listingID domainlistings.ListingID, content string) (*domainchat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainchat.ErrBlankContent
	}
	if utf8.RuneCountInString(content) > domainchat.MaxContentRunes {
		return nil, domainchat.ErrContentTooLong
	}
	if _, err := s.Users.ByID(ctx, recipient); err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, domainchat.ErrRecipientNotFound
		}
		return nil, err
	}
	if err := s.Guard.CanConverse(ctx, sender, recipient, listingID); err != nil {
		return nil, err
	}

	msg := &domainchat.Message{
		Sender:    sender,
		Recipient: recipient,
		Listing:   listingID,
		Content:   html.EscapeString(content),
	}
	if err := s.Messages.Append(ctx, msg); err != nil {
		return nil, err
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishMessage(ctx, *msg); err != nil {
			s.logWarn("message push failed", err, "message_id", string(msg.ID), "recipient_id", string(recipient))
		}
	}
	return msg, nil
}

// MarkRead flips every unread message from counterpart to reader about the
// listing and, when anything changed, pushes a read receipt to the
// counterpart. Idempotent; the second call in a row updates zero rows.
func (s *Service) MarkRead(ctx context.Context, reader, counterpart domainuser.ID, listingID domainlistings.ListingID) (int64, error) {
	updated, err := s.Messages.MarkRead(ctx, reader, counterpart, listingID)
	if err != nil {
		return 0, err
	}
	if updated > 0 && s.Publisher != nil {
		receipt := ReadReceipt{
			Reader:      reader,
			Counterpart: counterpart,
			Listing:     listingID,
			ReadAt:      time.Now().UTC(),
		}
		if err := s.Publisher.PublishReadReceipt(ctx, receipt); err != nil {
			s.logWarn("read receipt push failed", err, "reader_id", string(reader), "counterpart_id", string(counterpart))
		}
	}
	return updated, nil
}

// ListConversations returns the viewer's conversations newest-first with
// unread counts, enriched with counterpart profiles and listing titles.
// Unread counts are derived live from the read flags on every call; the
// store's grouped query keeps that a single round trip.
func (s *Service) ListConversations(ctx context.Context, viewer domainuser.ID, page domainchat.Pageable) (ConversationPage, error) {
	summaries, err := s.Messages.ListConversations(ctx, viewer, page)
	if err != nil {
		return ConversationPage{}, err
	}
	views := make([]ConversationView, 0, len(summaries.Items))
	for _, summary := range summaries.Items {
		view := ConversationView{
			Counterpart: domainuser.User{ID: summary.Counterpart},
			Listing:     domainlistings.Listing{ID: summary.Listing},
			LastMessage: summary.LastMessage,
			UnreadCount: summary.UnreadCount,
		}
		if counterpart, err := s.Users.ByID(ctx, summary.Counterpart); err == nil {
			view.Counterpart = *counterpart
		}
		if listing, err := s.Guard.Listings.ByID(ctx, summary.Listing); err == nil {
			view.Listing = *listing
		}
		views = append(views, view)
	}
	return ConversationPage{Items: views, Page: summaries.Page, Size: summaries.Size, Total: summaries.Total}, nil
}

// History returns one conversation's messages newest-first with a stable
// identity tie-break, paged.
func (s *Service) History(ctx context.Context, viewer, counterpart domainuser.ID, listingID domainlistings.ListingID, page domainchat.Pageable) (domainchat.MessagePage, error) {
	return s.Messages.List(ctx, domainchat.Filter{
		Between: domainchat.Pair{A: viewer, B: counterpart},
		Listing: listingID,
	}, page)
}

// Since returns the conversation's messages strictly newer than the given
// cursor, ascending, so a poller can fold them into history in delivery
// order. An empty result returns promptly; there is no long-polling.
func (s *Service) Since(ctx context.Context, viewer, counterpart domainuser.ID, listingID domainlistings.ListingID, cursor time.Time) ([]domainchat.Message, error) {
	page, err := s.Messages.List(ctx, domainchat.Filter{
		Between:   domainchat.Pair{A: viewer, B: counterpart},
		Listing:   listingID,
		After:     cursor,
		Ascending: true,
	}, domainchat.Pageable{})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (s *Service) logWarn(msg string, err error, attrs ...any) {
	if s.Logger != nil {
		s.Logger.Warn(msg, append([]any{"error", err}, attrs...)...)
	}
}
