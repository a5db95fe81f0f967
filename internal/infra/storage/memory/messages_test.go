package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/user"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func appendMessage(t *testing.T, store *MessageStore, sender, recipient, listing, content string) chat.Message {
	t.Helper()
	msg := chat.Message{
		Sender:    user.ID(sender),
		Recipient: user.ID(recipient),
		Listing:   listings.ListingID(listing),
		Content:   content,
	}
	if err := store.Append(context.Background(), &msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	return msg
}

func TestAppendAssignsMonotonicIdentity(t *testing.T) {
	clock := newStepClock()
	store := NewMessageStoreWithClock(clock.Now)

	first := appendMessage(t, store, "1", "2", "10", "a")
	second := appendMessage(t, store, "2", "1", "10", "b")
	if !(first.ID < second.ID) {
		t.Fatalf("ids not monotonic: %q then %q", first.ID, second.ID)
	}
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatalf("timestamps went backwards: %v then %v", first.CreatedAt, second.CreatedAt)
	}
	if first.Read || second.Read {
		t.Fatal("new messages must start unread")
	}
}

func TestListOrderingAndPagination(t *testing.T) {
	clock := newStepClock()
	store := NewMessageStoreWithClock(clock.Now)

	a := appendMessage(t, store, "1", "2", "10", "A")
	clock.Advance(time.Second)
	b := appendMessage(t, store, "2", "1", "10", "B")
	clock.Advance(time.Second)
	c := appendMessage(t, store, "1", "2", "10", "C")

	filter := chat.Filter{Between: chat.Pair{A: "1", B: "2"}, Listing: "10"}

	page0, err := store.List(context.Background(), filter, chat.Pageable{Page: 0, Size: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertIDs(t, page0.Items, c.ID, b.ID)
	if page0.Total != 3 {
		t.Fatalf("total = %d, want 3", page0.Total)
	}

	page1, err := store.List(context.Background(), filter, chat.Pageable{Page: 1, Size: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertIDs(t, page1.Items, a.ID)
}

func TestListTieBreaksByIdentity(t *testing.T) {
	clock := newStepClock()
	store := NewMessageStoreWithClock(clock.Now)

	// same clock instant for all three
	first := appendMessage(t, store, "1", "2", "10", "x")
	second := appendMessage(t, store, "2", "1", "10", "y")
	third := appendMessage(t, store, "1", "2", "10", "z")

	filter := chat.Filter{Between: chat.Pair{A: "1", B: "2"}, Listing: "10"}
	page, err := store.List(context.Background(), filter, chat.Pageable{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// equal timestamps: identity ascending, repeatable across calls
	assertIDs(t, page.Items, first.ID, second.ID, third.ID)

	again, err := store.List(context.Background(), filter, chat.Pageable{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertIDs(t, again.Items, first.ID, second.ID, third.ID)
}

func TestListSinceStrictlyNewer(t *testing.T) {
	clock := newStepClock()
	store := NewMessageStoreWithClock(clock.Now)

	old := appendMessage(t, store, "1", "2", "10", "old")
	clock.Advance(time.Second)
	fresh := appendMessage(t, store, "2", "1", "10", "fresh")

	page, err := store.List(context.Background(), chat.Filter{
		Between:   chat.Pair{A: "1", B: "2"},
		Listing:   "10",
		After:     old.CreatedAt,
		Ascending: true,
	}, chat.Pageable{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertIDs(t, page.Items, fresh.ID)

	empty, err := store.List(context.Background(), chat.Filter{
		Between:   chat.Pair{A: "1", B: "2"},
		Listing:   "10",
		After:     fresh.CreatedAt,
		Ascending: true,
	}, chat.Pageable{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(empty.Items) != 0 {
		t.Fatalf("expected empty result, got %d items", len(empty.Items))
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	store := NewMessageStore()
	appendMessage(t, store, "2", "1", "10", "hello")
	appendMessage(t, store, "2", "1", "10", "there")
	appendMessage(t, store, "2", "1", "11", "other listing")

	updated, err := store.MarkRead(context.Background(), "1", "2", "10")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}

	updated, err = store.MarkRead(context.Background(), "1", "2", "10")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if updated != 0 {
		t.Fatalf("second call updated = %d, want 0", updated)
	}
}

func TestMarkReadConcurrentWithAppend(t *testing.T) {
	store := NewMessageStore()
	const senders = 4
	const perSender = 25

	var wg sync.WaitGroup
	for g := 0; g < senders; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				msg := chat.Message{Sender: "2", Recipient: "1", Listing: "10", Content: "ping"}
				if err := store.Append(context.Background(), &msg); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if _, err := store.MarkRead(context.Background(), "1", "2", "10"); err != nil {
					t.Errorf("mark read: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	// every message is either read or still unread, and one final sweep
	// leaves nothing behind
	if _, err := store.MarkRead(context.Background(), "1", "2", "10"); err != nil {
		t.Fatalf("final mark read: %v", err)
	}
	page, err := store.List(context.Background(), chat.Filter{Between: chat.Pair{A: "1", B: "2"}, Listing: "10"}, chat.Pageable{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != senders*perSender {
		t.Fatalf("messages = %d, want %d", len(page.Items), senders*perSender)
	}
	for _, msg := range page.Items {
		if !msg.Read {
			t.Fatalf("message %s left unread after final sweep", msg.ID)
		}
	}
}

func TestListConversationsGroupsByPairAndListing(t *testing.T) {
	clock := newStepClock()
	store := NewMessageStoreWithClock(clock.Now)

	appendMessage(t, store, "2", "1", "10", "about the bike")
	clock.Advance(time.Second)
	appendMessage(t, store, "2", "1", "11", "about the sofa")
	clock.Advance(time.Second)
	appendMessage(t, store, "3", "1", "10", "also about the bike")
	clock.Advance(time.Second)
	latest := appendMessage(t, store, "1", "2", "10", "reply about the bike")

	page, err := store.ListConversations(context.Background(), "1", chat.Pageable{})
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3 distinct conversations", page.Total)
	}
	top := page.Items[0]
	if top.Counterpart != "2" || top.Listing != "10" {
		t.Fatalf("top conversation = %s/%s, want 2/10", top.Counterpart, top.Listing)
	}
	if top.LastMessage.ID != latest.ID {
		t.Fatalf("last message = %s, want %s", top.LastMessage.ID, latest.ID)
	}
	if top.UnreadCount != 1 {
		t.Fatalf("unread = %d, want 1 (own reply does not count)", top.UnreadCount)
	}
}

func TestListConversationsUnreadTracksReadFlags(t *testing.T) {
	store := NewMessageStore()
	appendMessage(t, store, "2", "1", "10", "one")
	appendMessage(t, store, "2", "1", "10", "two")

	page, err := store.ListConversations(context.Background(), "1", chat.Pageable{})
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if page.Items[0].UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2", page.Items[0].UnreadCount)
	}

	if _, err := store.MarkRead(context.Background(), "1", "2", "10"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	page, err = store.ListConversations(context.Background(), "1", chat.Pageable{})
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if page.Items[0].UnreadCount != 0 {
		t.Fatalf("unread = %d after mark read, want 0", page.Items[0].UnreadCount)
	}
}

func assertIDs(t *testing.T, items []chat.Message, want ...chat.MessageID) {
	t.Helper()
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, msg := range items {
		if msg.ID != want[i] {
			t.Fatalf("item %d = %s, want %s", i, msg.ID, want[i])
		}
	}
}
