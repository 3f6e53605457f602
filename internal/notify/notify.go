package notify

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"edusocial/internal/events"
	"edusocial/internal/identity"
	"edusocial/pkg/logger"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient user-facing message. The core never renders
// it; whatever UI is attached decides how to show it.
type Notification struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

func Info(ctx context.Context, n Notifier, text string) {
	send(ctx, n, LevelInfo, text)
}

func Success(ctx context.Context, n Notifier, text string) {
	send(ctx, n, LevelSuccess, text)
}

func Error(ctx context.Context, n Notifier, text string) {
	send(ctx, n, LevelError, text)
}

func send(ctx context.Context, n Notifier, level Level, text string) {
	if n == nil {
		return
	}
	n.Notify(ctx, Notification{Level: level, Text: text, At: time.Now()})
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	fields := []zap.Field{zap.String("level", string(n.Level)), zap.String("text", n.Text)}
	if n.Level == LevelError {
		l.log.WithContext(ctx).Warn("notification", fields...)
		return
	}
	l.log.WithContext(ctx).Info("notification", fields...)
}

type publisher interface {
	PublishJSON(ctx context.Context, channel string, v any) error
}

// RedisNotifier publishes notifications on the acting user's channel.
type RedisNotifier struct {
	publisher publisher
	identity  identity.Resolver
	log       *logger.Logger
}

func NewRedisNotifier(p publisher, id identity.Resolver, log *logger.Logger) *RedisNotifier {
	return &RedisNotifier{publisher: p, identity: id, log: log.Named("notify")}
}

func Channel(userID int64) string {
	return events.ChannelPrefixUser + strconv.FormatInt(userID, 10) + events.ChannelSuffixNotifications
}

func (r *RedisNotifier) Notify(ctx context.Context, n Notification) {
	userID, ok := r.identity.UserID()
	if !ok {
		return
	}
	if err := r.publisher.PublishJSON(context.WithoutCancel(ctx), Channel(userID), n); err != nil {
		r.log.Warn("failed to publish notification", zap.Error(err), zap.Int64("user_id", userID))
	}
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
