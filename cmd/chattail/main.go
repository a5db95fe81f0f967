// chattail follows one conversation from the command line, wiring both
// delivery paths the way a chat client should: kafka pushes render with low
// latency, the HTTP poll stays authoritative for completeness, and the
// shared feed de-duplicates by message id so a message never prints twice.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"marketchat/internal/app/dto"
	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
	kafkabroker "marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/push"
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "marketchat server base URL")
		token       = flag.String("token", "", "bearer token for the current user")
		userID      = flag.String("user", "", "current user id (names the push topic)")
		counterpart = flag.String("counterpart", "", "counterpart user id")
		listing     = flag.String("listing", "", "listing id")
		brokers     = flag.String("brokers", "", "comma-separated kafka brokers; empty disables the push path")
		topicPrefix = flag.String("topic-prefix", "", "kafka topic prefix")
		interval    = flag.Duration("interval", time.Second, "poll interval")
	)
	flag.Parse()
	if *token == "" || *userID == "" || *counterpart == "" || *listing == "" {
		fmt.Fprintln(os.Stderr, "usage: chattail -token T -user U -counterpart C -listing L [-brokers ...]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := obs.NewLogger("dev")

	feed := chatservice.NewConversationFeed()

	if *brokers != "" {
		consumer, err := kafkabroker.NewConsumer(
			splitBrokers(*brokers),
			"chattail-"+uuid.NewString(),
			nil,
			pushHandler{feed: feed, self: domainuser.ID(*userID)},
			logger,
		)
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		topic := push.UserTopic(*topicPrefix, domainuser.ID(*userID))
		go func() {
			if err := consumer.Run(ctx, []string{topic}); err != nil && ctx.Err() == nil {
				logger.Error("kafka consume failed", "error", err)
			}
		}()
		logger.Info("push path attached", "topic", topic)
	}

	poller := &chatservice.Poller{
		Feed:     feed,
		Fetch:    pollFetcher(*baseURL, *token, *counterpart, *listing),
		Interval: *interval,
		Logger:   logger,
		OnMessage: func(msg domainchat.Message) {
			printMessage("poll", msg)
		},
	}
	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("poller stopped", "error", err)
		os.Exit(1)
	}
}

type pushHandler struct {
	feed *chatservice.ConversationFeed
	self domainuser.ID
}

func (h pushHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	env, err := push.DecodeEnvelope(msg.Value)
	if err != nil {
		return err
	}
	switch env.Type {
	case push.EventMessage:
		if env.Message == nil {
			return nil
		}
		if fresh := h.feed.ApplyPush(env.Message.ToMessage()); fresh {
			printMessage("push", env.Message.ToMessage())
		}
	case push.EventRead:
		if env.Receipt != nil {
			fmt.Printf("-- seen by %s at %s\n", env.Receipt.ReaderID, env.Receipt.ReadAt.Format(time.RFC3339))
		}
	}
	return nil
}

func pollFetcher(baseURL, token, counterpart, listing string) chatservice.PollFunc {
	client := &http.Client{Timeout: 10 * time.Second}
	return func(ctx context.Context, since time.Time) ([]domainchat.Message, error) {
		query := url.Values{}
		query.Set("counterpart_id", counterpart)
		query.Set("listing_id", listing)
		if !since.IsZero() {
			query.Set("since", since.Format(time.RFC3339Nano))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			baseURL+"/api/v1/conversations/poll?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("poll returned %s", resp.Status)
		}
		var feed dto.MessageFeed
		if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
			return nil, err
		}
		messages := make([]domainchat.Message, 0, len(feed.Items))
		for _, item := range feed.Items {
			messages = append(messages, domainchat.Message{
				ID:        domainchat.MessageID(item.ID),
				Sender:    domainuser.ID(item.SenderID),
				Recipient: domainuser.ID(item.RecipientID),
				Listing:   domainlistings.ListingID(item.ListingID),
				Content:   item.Content,
				CreatedAt: item.CreatedAt,
				Read:      item.Read,
			})
		}
		return messages, nil
	}
}

func printMessage(path string, msg domainchat.Message) {
	fmt.Printf("[%s] %s %s: %s\n", path, msg.CreatedAt.Format(time.RFC3339), msg.Sender, msg.Content)
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
