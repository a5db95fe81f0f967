package push

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
)

func sampleMessage() domainchat.Message {
	return domainchat.Message{
		ID:        "000000000007",
		Sender:    "2",
		Recipient: "1",
		Listing:   "10",
		Content:   "Is this available?",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := newMessageEnvelope(sampleMessage())
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, EventMessage, decoded.Type)
	require.NotNil(t, decoded.Message)
	assert.Equal(t, sampleMessage(), decoded.Message.ToMessage())
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("{not json"))
	assert.Error(t, err)
}

func TestHubDeliversToRecipientOnly(t *testing.T) {
	hub := NewHub()
	recipient := hub.Subscribe("1", 4)
	defer recipient.Close()
	bystander := hub.Subscribe("3", 4)
	defer bystander.Close()

	require.NoError(t, hub.PublishMessage(context.Background(), sampleMessage()))

	select {
	case env := <-recipient.C:
		assert.Equal(t, EventMessage, env.Type)
		assert.Equal(t, "000000000007", env.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("recipient never received the push")
	}
	select {
	case env := <-bystander.C:
		t.Fatalf("bystander received %v", env)
	default:
	}
}

func TestHubDropsWhenSubscriberSaturated(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("1", 1)
	defer sub.Close()

	require.NoError(t, hub.PublishMessage(context.Background(), sampleMessage()))
	// second publish must not block even though the buffer is full
	require.NoError(t, hub.PublishMessage(context.Background(), sampleMessage()))

	<-sub.C
	select {
	case <-sub.C:
		t.Fatal("saturated subscriber should have dropped the second event")
	default:
	}
}

func TestHubPublishReadReceipt(t *testing.T) {
	hub := NewHub()
	counterpart := hub.Subscribe("2", 4)
	defer counterpart.Close()

	receipt := chatservice.ReadReceipt{
		Reader:      "1",
		Counterpart: "2",
		Listing:     "10",
		ReadAt:      time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC),
	}
	require.NoError(t, hub.PublishReadReceipt(context.Background(), receipt))

	select {
	case env := <-counterpart.C:
		assert.Equal(t, EventRead, env.Type)
		require.NotNil(t, env.Receipt)
		assert.Equal(t, "1", env.Receipt.ReaderID)
		assert.Equal(t, receipt.ReadAt, env.Receipt.ReadAt)
	case <-time.After(time.Second):
		t.Fatal("counterpart never received the receipt")
	}
}

func TestUserTopic(t *testing.T) {
	assert.Equal(t, "chat.user.1", UserTopic("", "1"))
	assert.Equal(t, "dev.chat.user.1", UserTopic("dev.", "1"))
}
