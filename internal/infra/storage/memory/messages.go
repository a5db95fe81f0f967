package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

// MessageStore keeps messages in memory. Not suitable for production; it
// backs dev mode and tests. A single mutex makes MarkRead atomic with
// respect to concurrent Append calls.
type MessageStore struct {
	mu   sync.RWMutex
	seq  int64
	last time.Time
	rows []chat.Message
	now  func() time.Time
}

func NewMessageStore() *MessageStore {
	return &MessageStore{now: time.Now}
}

// NewMessageStoreWithClock lets tests control assigned timestamps.
func NewMessageStoreWithClock(now func() time.Time) *MessageStore {
	return &MessageStore{now: now}
}

func (s *MessageStore) Append(ctx context.Context, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UTC()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	s.seq++
	msg.ID = chat.MessageID(fmt.Sprintf("%012d", s.seq))
	msg.CreatedAt = ts
	msg.Read = false
	s.rows = append(s.rows, *msg)
	return nil
}

func (s *MessageStore) MarkRead(ctx context.Context, recipient, counterpart user.ID, listing listings.ListingID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for i := range s.rows {
		row := &s.rows[i]
		if row.Recipient == recipient && row.Sender == counterpart && row.Listing == listing && !row.Read {
			row.Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *MessageStore) List(ctx context.Context, f chat.Filter, page chat.Pageable) (chat.MessagePage, error) {
	s.mu.RLock()
	matched := make([]chat.Message, 0)
	for _, row := range s.rows {
		if matches(f, row) {
			matched = append(matched, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if f.Ascending {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	total := int64(len(matched))
	return chat.MessagePage{
		Items: slicePage(matched, page),
		Page:  page.Page,
		Size:  page.Size,
		Total: total,
	}, nil
}

func (s *MessageStore) ListConversations(ctx context.Context, viewer user.ID, page chat.Pageable) (chat.SummaryPage, error) {
	s.mu.RLock()
	groups := make(map[chat.ConversationKey]*chat.ConversationSummary)
	for _, row := range s.rows {
		var counterpart user.ID
		switch viewer {
		case row.Sender:
			counterpart = row.Recipient
		case row.Recipient:
			counterpart = row.Sender
		default:
			continue
		}
		key := chat.ConversationKey{Counterpart: counterpart, Listing: row.Listing}
		summary, ok := groups[key]
		if !ok {
			summary = &chat.ConversationSummary{Counterpart: counterpart, Listing: row.Listing}
			groups[key] = summary
		}
		if newerThan(row, summary.LastMessage) {
			summary.LastMessage = row
		}
		if row.Recipient == viewer && !row.Read {
			summary.UnreadCount++
		}
	}
	s.mu.RUnlock()

	summaries := make([]chat.ConversationSummary, 0, len(groups))
	for _, summary := range groups {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage, summaries[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := int64(len(summaries))
	return chat.SummaryPage{
		Items: slicePage(summaries, page),
		Page:  page.Page,
		Size:  page.Size,
		Total: total,
	}, nil
}

func matches(f chat.Filter, m chat.Message) bool {
	if f.Between.A != "" || f.Between.B != "" {
		forward := m.Sender == f.Between.A && m.Recipient == f.Between.B
		backward := m.Sender == f.Between.B && m.Recipient == f.Between.A
		if !forward && !backward {
			return false
		}
	}
	if f.Listing != "" && m.Listing != f.Listing {
		return false
	}
	if !f.After.IsZero() && !m.CreatedAt.After(f.After) {
		return false
	}
	return true
}

func newerThan(candidate, current chat.Message) bool {
	if current.ID == "" {
		return true
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.After(current.CreatedAt)
	}
	return candidate.ID > current.ID
}

func slicePage[T any](items []T, page chat.Pageable) []T {
	if page.Size <= 0 {
		return items
	}
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var _ chat.Repository = (*MessageStore)(nil)
