package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	domainlistings "marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
	kafkabroker "marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	mongodb "marketchat/internal/infra/db/mongo"
	ginserver "marketchat/internal/infra/http/gin"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/push"
	"marketchat/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	messages, ready, cleanup, err := buildMessageStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("message store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	users := memory.NewUserDirectory()
	catalog := memory.NewListingDirectory()
	sessions := memory.NewSessionStore(users)
	if cfg.Env == "dev" || cfg.Env == "local" {
		seedFixtures(users, catalog, sessions)
		logger.Info("dev fixtures loaded")
	}

	publisher, pubCleanup, err := buildPublisher(cfg, logger)
	if err != nil {
		logger.Error("push publisher init failed", "error", err)
		os.Exit(1)
	}
	defer pubCleanup()

	service := &chatservice.Service{
		Messages:  messages,
		Users:     users,
		Guard:     chatservice.Guard{Listings: catalog},
		Publisher: publisher,
		Logger:    logger,
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: ready,
	}, ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Chat: service, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Resolver: sessions, Logger: logger}.Handle,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

func buildMessageStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (domainchat.Repository, func() error, func(), error) {
	if cfg.StoreBackend != config.StoreMongo {
		return memory.NewMessageStore(), func() error { return nil }, func() {}, nil
	}
	client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, nil, err
	}
	repo := mongodb.NewMessageRepository(client.DB)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("index creation failed", "error", err)
	}
	ready := func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx)
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}
	logger.Info("mongo connected", "db", cfg.MongoDB)
	return repo, ready, cleanup, nil
}

func buildPublisher(cfg config.Config, logger *slog.Logger) (chatservice.Publisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("push path using in-process hub")
		return push.NewHub(), func() {}, nil
	}
	producer, err := kafkabroker.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka producer close failed", "error", err)
		}
	}
	logger.Info("push path using kafka", "brokers", cfg.KafkaBrokers)
	return &push.KafkaPublisher{Producer: producer, TopicPrefix: cfg.KafkaTopicPrefix}, cleanup, nil
}

func seedFixtures(users *memory.UserDirectory, catalog *memory.ListingDirectory, sessions *memory.SessionStore) {
	users.Add(domainuser.User{ID: "u-alice", DisplayName: "Alice", AvatarURL: "https://example.com/a/alice.png"})
	users.Add(domainuser.User{ID: "u-bob", DisplayName: "Bob", AvatarURL: "https://example.com/a/bob.png"})
	users.Add(domainuser.User{ID: "u-carol", DisplayName: "Carol"})
	catalog.Add(domainlistings.Listing{ID: "l-bike", Title: "City bike, barely used", Seller: "u-alice"})
	catalog.Add(domainlistings.Listing{ID: "l-sofa", Title: "Two-seat sofa", Seller: "u-bob"})
	sessions.Grant("alice-token", "u-alice")
	sessions.Grant("bob-token", "u-bob")
	sessions.Grant("carol-token", "u-carol")
}
