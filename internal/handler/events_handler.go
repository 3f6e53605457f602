package handler

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"edusocial/internal/chat"
	"edusocial/internal/friend"
	"edusocial/internal/notify"
	"edusocial/internal/transport/httpdto"
	"edusocial/pkg/logger"
)

const (
	SSEEventChat         = "chat"
	SSEEventFriend       = "friend"
	SSEEventNotification = "notification"

	notificationBuffer = 32
)

// EventsHandler streams store snapshots to a UI over server-sent events.
// Each stream starts with the current snapshots. Notifications are relayed
// when a feed is configured.
type EventsHandler struct {
	chat    ChatStore
	friends FriendStore
	feed    notify.Feed
}

func NewEventsHandler(chat ChatStore, friends FriendStore, feed notify.Feed) *EventsHandler {
	return &EventsHandler{chat: chat, friends: friends, feed: feed}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	if h.chat == nil && h.friends == nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("no stores", httpdto.CodeUnavailable))
		return
	}

	// Subscribers run on the publishing goroutine and must not block. A slow
	// reader only ever misses intermediate snapshots, never the newest one.
	snaps := newLatestSnapshots()
	if h.chat != nil {
		unsubscribe := h.chat.Subscribe(func(s chat.Snapshot) { snaps.put(SSEEventChat, s.Version, s) })
		defer unsubscribe()
		s := h.chat.Snapshot()
		snaps.put(SSEEventChat, s.Version, s)
	}
	if h.friends != nil {
		unsubscribe := h.friends.Subscribe(func(s friend.Snapshot) { snaps.put(SSEEventFriend, s.Version, s) })
		defer unsubscribe()
		s := h.friends.Snapshot()
		snaps.put(SSEEventFriend, s.Version, s)
	}

	ctx := c.Request.Context()
	notes := make(chan notify.Notification, notificationBuffer)
	if h.feed != nil {
		go func() {
			err := h.feed.Listen(ctx, func(n notify.Notification) {
				select {
				case notes <- n:
				default:
				}
			})
			if err != nil && ctx.Err() == nil {
				if l := logger.GetGlobalLogger(); l != nil {
					l.Warn("notification feed stopped", zap.Error(err))
				}
			}
		}()
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-snaps.wake:
			pending := snaps.take()
			for _, name := range []string{SSEEventChat, SSEEventFriend} {
				if v, ok := pending[name]; ok {
					c.SSEvent(name, v)
				}
			}
			return true
		case n := <-notes:
			c.SSEvent(SSEEventNotification, n)
			return true
		}
	})
}

// latestSnapshots keeps the newest undelivered snapshot per event name.
type latestSnapshots struct {
	mu      sync.Mutex
	pending map[string]any
	seen    map[string]uint64
	wake    chan struct{}
}

func newLatestSnapshots() *latestSnapshots {
	return &latestSnapshots{
		pending: make(map[string]any),
		seen:    make(map[string]uint64),
		wake:    make(chan struct{}, 1),
	}
}

// put replaces the pending snapshot for name unless one at least as new was
// already queued or delivered.
func (l *latestSnapshots) put(name string, version uint64, snap any) {
	l.mu.Lock()
	if last, ok := l.seen[name]; ok && version <= last {
		l.mu.Unlock()
		return
	}
	l.seen[name] = version
	l.pending[name] = snap
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *latestSnapshots) take() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := l.pending
	l.pending = make(map[string]any)
	return pending
}
