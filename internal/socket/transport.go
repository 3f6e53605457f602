package socket

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"edusocial/internal/events"
	"edusocial/pkg/logger"
)

// Unsubscribe releases a handler registration. Calling it twice is harmless.
type Unsubscribe func()

// Transport is one logical push channel. Implementations deliver handlers on
// their own goroutine; handlers must not block.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	JoinRoom(roomID int64) error
	LeaveRoom(roomID int64) error
	OnConnectionChange(fn func(connected bool)) Unsubscribe
	Subscribe(event string, fn func(data json.RawMessage)) Unsubscribe
}

func subscribeTyped[T any](t Transport, event string, fn func(T)) Unsubscribe {
	return t.Subscribe(event, func(data json.RawMessage) {
		var payload T
		if err := json.Unmarshal(events.Unwrap(data), &payload); err != nil {
			if l := logger.GetGlobalLogger(); l != nil {
				l.Debug("ignoring malformed push payload",
					zap.String("event", event),
					zap.ByteString("payload", data),
					zap.Error(err),
				)
			}
			return
		}
		fn(payload)
	})
}

func OnMessageReceived(t Transport, fn func(events.MessageReceived)) Unsubscribe {
	return subscribeTyped(t, events.EventReceiveMessage, fn)
}

func OnMessageRead(t Transport, fn func(events.MessageRead)) Unsubscribe {
	return subscribeTyped(t, events.EventMessageRead, fn)
}

func OnUserBlocked(t Transport, fn func(events.UserBlocked)) Unsubscribe {
	return subscribeTyped(t, events.EventUserBlocked, fn)
}

func OnUserUnblocked(t Transport, fn func(events.UserUnblocked)) Unsubscribe {
	return subscribeTyped(t, events.EventUserUnblocked, fn)
}

func OnFriendRequestReceived(t Transport, fn func(events.FriendRequestReceived)) Unsubscribe {
	return subscribeTyped(t, events.EventFriendRequestReceived, fn)
}

func OnFriendRequestAccepted(t Transport, fn func(events.FriendRequestAccepted)) Unsubscribe {
	return subscribeTyped(t, events.EventFriendRequestAccepted, fn)
}

func OnFriendRequestRejected(t Transport, fn func(events.FriendRequestRejected)) Unsubscribe {
	return subscribeTyped(t, events.EventFriendRequestRejected, fn)
}

func OnFriendRemoved(t Transport, fn func(events.FriendRemoved)) Unsubscribe {
	return subscribeTyped(t, events.EventFriendRemoved, fn)
}

func OnFriendError(t Transport, fn func(events.FriendError)) Unsubscribe {
	return subscribeTyped(t, events.EventFriendError, fn)
}
