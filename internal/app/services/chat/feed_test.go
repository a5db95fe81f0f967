package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "marketchat/internal/domain/chat"
)

func feedMessage(id string, at time.Time, content string) domainchat.Message {
	return domainchat.Message{
		ID:        domainchat.MessageID(id),
		Sender:    "1",
		Recipient: "2",
		Listing:   "10",
		Content:   content,
		CreatedAt: at,
	}
}

func TestFeedPushDoesNotAdvanceCursor(t *testing.T) {
	feed := NewConversationFeed()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, feed.ApplyPush(feedMessage("m1", at, "hello")))
	assert.True(t, feed.Cursor().IsZero(), "push must never move the poll cursor")

	// the next poll still covers everything and confirms the pushed message
	feed.ApplyPoll([]domainchat.Message{feedMessage("m1", at, "hello")})
	assert.Equal(t, at, feed.Cursor())
	assert.Len(t, feed.Messages(), 1)
}

func TestFeedDeduplicatesByIdentityNotTimestamp(t *testing.T) {
	feed := NewConversationFeed()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// two distinct messages sharing one timestamp must both survive
	feed.ApplyPoll([]domainchat.Message{
		feedMessage("m1", at, "first"),
		feedMessage("m2", at, "second"),
	})
	require.Len(t, feed.Messages(), 2)

	// the same message arriving over both paths renders once
	assert.False(t, feed.ApplyPush(feedMessage("m2", at, "second")))
	assert.Len(t, feed.Messages(), 2)
}

func TestFeedOrdersByTimestampThenIdentity(t *testing.T) {
	feed := NewConversationFeed()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	feed.ApplyPush(feedMessage("m3", base.Add(time.Second), "late"))
	feed.ApplyPoll([]domainchat.Message{
		feedMessage("m2", base, "tie-b"),
		feedMessage("m1", base, "tie-a"),
	})

	history := feed.Messages()
	require.Len(t, history, 3)
	assert.Equal(t, domainchat.MessageID("m1"), history[0].ID)
	assert.Equal(t, domainchat.MessageID("m2"), history[1].ID)
	assert.Equal(t, domainchat.MessageID("m3"), history[2].ID)
}

func TestFeedPollRoundTrip(t *testing.T) {
	feed := NewConversationFeed()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := feed.ApplyPoll([]domainchat.Message{
		feedMessage("m1", base, "a"),
		feedMessage("m2", base.Add(time.Second), "b"),
	})
	assert.Len(t, fresh, 2)
	assert.Equal(t, base.Add(time.Second), feed.Cursor())

	// polling again from the cursor yields nothing until a new message lands
	assert.Empty(t, feed.ApplyPoll(nil))
	assert.Equal(t, base.Add(time.Second), feed.Cursor())
}

func TestApplyPollSkipsMessagesAlreadyPushed(t *testing.T) {
	feed := NewConversationFeed()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// m1 arrived over the push path and was rendered there
	require.True(t, feed.ApplyPush(feedMessage("m1", base, "a")))

	// the next poll covers m1 again; only m2 comes back for rendering
	fresh := feed.ApplyPoll([]domainchat.Message{
		feedMessage("m1", base, "a"),
		feedMessage("m2", base.Add(time.Second), "b"),
	})
	require.Len(t, fresh, 1)
	assert.Equal(t, domainchat.MessageID("m2"), fresh[0].ID)
	assert.Equal(t, base.Add(time.Second), feed.Cursor())
}

func TestPollerFoldsFetchResults(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var (
		mu      sync.Mutex
		cursors []time.Time
	)
	batches := [][]domainchat.Message{
		{feedMessage("m1", base, "a")},
		{},
		{feedMessage("m2", base.Add(time.Second), "b")},
	}

	feed := NewConversationFeed()
	ctx, cancel := context.WithCancel(context.Background())
	poller := &Poller{
		Feed:     feed,
		Interval: 5 * time.Millisecond,
		Fetch: func(ctx context.Context, since time.Time) ([]domainchat.Message, error) {
			mu.Lock()
			defer mu.Unlock()
			cursors = append(cursors, since)
			if len(cursors) > len(batches) {
				cancel()
				return nil, nil
			}
			return batches[len(cursors)-1], nil
		},
	}
	err := poller.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	history := feed.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, domainchat.MessageID("m1"), history[0].ID)
	assert.Equal(t, domainchat.MessageID("m2"), history[1].ID)

	mu.Lock()
	defer mu.Unlock()
	// the cursor the poller presented always matched what polling had confirmed
	assert.True(t, cursors[0].IsZero())
	assert.Equal(t, base, cursors[1])
	assert.Equal(t, base, cursors[2])
	assert.Equal(t, base.Add(time.Second), cursors[3])
}
