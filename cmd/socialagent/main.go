package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"edusocial/internal/api"
	"edusocial/internal/chat"
	"edusocial/internal/config"
	"edusocial/internal/friend"
	"edusocial/internal/handler"
	"edusocial/internal/identity"
	"edusocial/internal/metrics"
	"edusocial/internal/notify"
	"edusocial/internal/redis"
	"edusocial/internal/server"
	"edusocial/internal/socket"
	"edusocial/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.App.Mode)
	logger.SetGlobalLogger(l)
	defer func() { _ = l.Sync() }()

	if err := run(cfg, l); err != nil {
		l.Error("social agent stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	resolver := identity.NewSessionResolver(identity.NewFileStorage(cfg.Session.Path))
	if id, ok := resolver.UserID(); ok {
		l.Info("acting user resolved", zap.Int64("user_id", id))
	} else {
		l.Warn("no acting user in session storage; stores stay empty until one appears")
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:         cfg.API.BaseURL,
		Token:           cfg.API.Token,
		Timeout:         cfg.API.Timeout,
		RetryMaxElapsed: cfg.API.RetryMaxElapsed,
		BreakerFailures: uint32(max(cfg.API.BreakerFailures, 1)),
	}, l)
	if err != nil {
		return err
	}

	chatSocket, err := newSocket(cfg, cfg.Socket.ChatNamespace, l)
	if err != nil {
		return err
	}
	defer chatSocket.Close()
	friendSocket, err := newSocket(cfg, cfg.Socket.FriendNamespace, l)
	if err != nil {
		return err
	}
	defer friendSocket.Close()

	notifiers := notify.Multi{notify.NewLogNotifier(l)}
	var conversationCache chat.SnapshotCache
	var contactCache friend.ContactCache
	var feed notify.Feed
	if cfg.Redis.Enabled() {
		rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			l.Warn("redis unavailable; running without cache", zap.Error(err))
		} else {
			defer rdb.Close()
			cache := redis.NewCacheStore(rdb, redis.DefaultCacheConfig())
			conversationCache = cache
			contactCache = cache
			notifiers = append(notifiers, notify.NewRedisNotifier(redis.NewPublisher(rdb), resolver, l))
			feed = notify.NewRedisFeed(redis.NewSubscriber(rdb), resolver, l)
		}
	}
	if feed == nil {
		hub := notify.NewHub()
		notifiers = append(notifiers, hub)
		feed = hub
	}

	friends := friend.NewStore(friend.Deps{
		API:      client,
		Friends:  friendSocket,
		Chat:     chatSocket,
		Identity: resolver,
		Notifier: notifiers,
		Cache:    contactCache,
		Logger:   l,
	}, friend.Config{RequestLimit: cfg.Limits.FriendRequests})

	chats := chat.NewStore(chat.Deps{
		API:       client,
		Transport: chatSocket,
		Identity:  resolver,
		Notifier:  notifiers,
		Contacts:  friends,
		Cache:     conversationCache,
		Logger:    l,
	}, chat.Config{
		ConversationLimit: cfg.Limits.Conversations,
		MessageLimit:      cfg.Limits.Messages,
		DedupCap:          cfg.Limits.DedupCap,
		DedupKeep:         cfg.Limits.DedupKeep,
	})

	// Stores subscribe before the sockets connect so no push is missed.
	friends.Start(ctx)
	defer friends.Stop()
	chats.Start(ctx)
	defer chats.Stop()

	go connectWithRetry(ctx, chatSocket, cfg.Socket.ChatNamespace, l)
	go connectWithRetry(ctx, friendSocket, cfg.Socket.FriendNamespace, l)

	srv := server.New(cfg.App.Mode, cfg.Server, l)
	srv.SetupRoutes(&server.Handlers{
		Chat:     handler.NewChatHandler(chats),
		Friend:   handler.NewFriendHandler(friends),
		Events:   handler.NewEventsHandler(chats, friends, feed),
		Identity: resolver,
	})
	return srv.Run(ctx)
}

func newSocket(cfg *config.Config, namespace string, l *logger.Logger) (*socket.Client, error) {
	endpoint, err := socket.EndpointURL(cfg.Socket.BaseURL, namespace)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if cfg.API.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.API.Token)
	}
	return socket.NewClient(socket.Options{
		URL:               endpoint,
		Namespace:         namespace,
		EncryptedUser:     cfg.Socket.EncryptedUser,
		Header:            header,
		DialTimeout:       cfg.Socket.DialTimeout,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
	}, l), nil
}

// connectWithRetry covers the first dial only; once connected the client
// reconnects by itself.
func connectWithRetry(ctx context.Context, c *socket.Client, namespace string, l *logger.Logger) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return c.Connect(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		l.Warn("socket connect failed", zap.String("namespace", namespace), zap.Duration("retry_in", next), zap.Error(err))
	})
	if err != nil && ctx.Err() == nil {
		l.Error("socket connect gave up", zap.String("namespace", namespace), zap.Error(err))
	}
}
