package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	domainchat "marketchat/internal/domain/chat"
)

// ConversationFeed reconciles the two delivery paths on the client side.
// Pushed messages arrive with low latency but at-most-once; polled messages
// are authoritative for completeness. Both paths feed the same state and are
// de-duplicated by message identity, never by timestamp, since timestamps
// can collide. Only the poll path moves the cursor: a pushed message may
// carry a newer timestamp than a message the store has not yet made visible,
// and advancing on it would skip that message forever.
type ConversationFeed struct {
	mu      sync.Mutex
	seen    map[domainchat.MessageID]struct{}
	cursor  time.Time
	history []domainchat.Message
}

func NewConversationFeed() *ConversationFeed {
	return &ConversationFeed{seen: make(map[domainchat.MessageID]struct{})}
}

// ApplyPush folds one pushed message into the feed. Returns false when the
// message was already delivered by either path. The cursor is untouched.
func (f *ConversationFeed) ApplyPush(msg domainchat.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fold(msg)
}

// ApplyPoll folds a poll result into the feed and advances the cursor to the
// newest timestamp observed. Returns the messages that were new; whether a
// message already arrived over the push path is decided under the feed's
// lock, so a caller rendering the result never repeats a pushed message.
func (f *ConversationFeed) ApplyPoll(msgs []domainchat.Message) []domainchat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fresh []domainchat.Message
	for _, msg := range msgs {
		if f.fold(msg) {
			fresh = append(fresh, msg)
		}
		if msg.CreatedAt.After(f.cursor) {
			f.cursor = msg.CreatedAt
		}
	}
	return fresh
}

// Cursor is the poll cursor: the newest timestamp a poll has confirmed.
func (f *ConversationFeed) Cursor() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// Messages returns the reconciled history in delivery order.
func (f *ConversationFeed) Messages() []domainchat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domainchat.Message, len(f.history))
	copy(out, f.history)
	return out
}

func (f *ConversationFeed) fold(msg domainchat.Message) bool {
	if _, dup := f.seen[msg.ID]; dup {
		return false
	}
	f.seen[msg.ID] = struct{}{}
	f.history = append(f.history, msg)
	sort.Slice(f.history, func(i, j int) bool {
		a, b := f.history[i], f.history[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return true
}

// PollFunc fetches messages strictly newer than since.
type PollFunc func(ctx context.Context, since time.Time) ([]domainchat.Message, error)

// Poller drives the pull path at a fixed interval, feeding results into the
// feed. Fetch errors are logged and retried on the next tick.
type Poller struct {
	Feed     *ConversationFeed
	Fetch    PollFunc
	Interval time.Duration
	Logger   *slog.Logger
	// OnMessage, when set, fires once per newly observed message.
	OnMessage func(domainchat.Message)
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	msgs, err := p.Fetch(ctx, p.Feed.Cursor())
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("poll failed", "error", err)
		}
		return
	}
	fresh := p.Feed.ApplyPoll(msgs)
	if p.OnMessage != nil {
		for _, msg := range fresh {
			p.OnMessage(msg)
		}
	}
}
