package push

import (
	"context"
	"encoding/json"
	"fmt"

	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/user"
	"marketchat/internal/infra/broker/kafka"
)

// UserTopic names the per-user destination topic.
func UserTopic(prefix string, id user.ID) string {
	return fmt.Sprintf("%schat.user.%s", prefix, id)
}

// KafkaPublisher publishes envelopes to each recipient's topic. The message
// key is the conversation (listing + counterpart) so one conversation stays
// on one partition in delivery order.
type KafkaPublisher struct {
	Producer    *kafka.Producer
	TopicPrefix string
}

func (p *KafkaPublisher) PublishMessage(ctx context.Context, msg domainchat.Message) error {
	env := newMessageEnvelope(msg)
	key := fmt.Sprintf("%s:%s", msg.Listing, msg.Sender)
	return p.publish(ctx, UserTopic(p.TopicPrefix, msg.Recipient), key, env)
}

func (p *KafkaPublisher) PublishReadReceipt(ctx context.Context, receipt chatservice.ReadReceipt) error {
	env := newReceiptEnvelope(receipt)
	key := fmt.Sprintf("%s:%s", receipt.Listing, receipt.Reader)
	return p.publish(ctx, UserTopic(p.TopicPrefix, receipt.Counterpart), key, env)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("push: encode envelope: %w", err)
	}
	headers := map[string]string{"event_type": string(env.Type)}
	return p.Producer.Publish(ctx, topic, key, payload, headers)
}

var _ chatservice.Publisher = (*KafkaPublisher)(nil)
