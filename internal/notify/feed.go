package notify

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"edusocial/internal/identity"
	"edusocial/pkg/logger"
)

// Feed delivers notifications published elsewhere until ctx is done.
type Feed interface {
	Listen(ctx context.Context, fn func(Notification)) error
}

type subscriber interface {
	Subscribe(ctx context.Context, channels []string, ready chan<- struct{}, handler func(channel string, payload []byte)) error
}

// RedisFeed reads the acting user's notification channel, the one
// RedisNotifier publishes on.
type RedisFeed struct {
	subscriber subscriber
	identity   identity.Resolver
	log        *logger.Logger
}

func NewRedisFeed(s subscriber, id identity.Resolver, log *logger.Logger) *RedisFeed {
	return &RedisFeed{subscriber: s, identity: id, log: log.Named("notify")}
}

func (f *RedisFeed) Listen(ctx context.Context, fn func(Notification)) error {
	userID, ok := f.identity.UserID()
	if !ok {
		<-ctx.Done()
		return nil
	}
	return f.subscriber.Subscribe(ctx, []string{Channel(userID)}, nil, func(_ string, payload []byte) {
		var n Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			f.log.Debug("dropping malformed notification", zap.Error(err))
			return
		}
		fn(n)
	})
}

// Hub is an in-process Notifier and Feed: every notification goes to the
// listeners registered at the time.
type Hub struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]func(Notification)
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[uint64]func(Notification))}
}

func (h *Hub) Notify(_ context.Context, n Notification) {
	h.mu.Lock()
	fns := make([]func(Notification), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

func (h *Hub) Listen(ctx context.Context, fn func(Notification)) error {
	h.mu.Lock()
	h.next++
	id := h.next
	h.listeners[id] = fn
	h.mu.Unlock()

	<-ctx.Done()

	h.mu.Lock()
	delete(h.listeners, id)
	h.mu.Unlock()
	return nil
}

func (h *Hub) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
