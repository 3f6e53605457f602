package handler

import (
	"context"
	"strconv"

	"edusocial/internal/chat"
	"edusocial/internal/domain"
	"edusocial/internal/friend"
)

// ChatStore is the part of *chat.Store the HTTP surface drives.
type ChatStore interface {
	Snapshot() chat.Snapshot
	Subscribe(fn func(chat.Snapshot)) func()
	FetchConversations(ctx context.Context) error
	StartChat(ctx context.Context, friendID int64) (string, error)
	SetActiveConversation(id string)
	MarkConversationAsRead(ctx context.Context, roomID string) error
	DeleteConversation(ctx context.Context, roomID string) error
	LoadMessages(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, content string, file *domain.Attachment) error
}

// FriendStore is the part of *friend.Store the HTTP surface drives.
type FriendStore interface {
	Snapshot() friend.Snapshot
	Subscribe(fn func(friend.Snapshot)) func()
	FetchContacts(ctx context.Context) error
	FetchFriendRequests(ctx context.Context) error
	FetchBlockedUsers(ctx context.Context) error
	ReceivedFriendRequests() []domain.FriendRequest
	IsBlocked(id int64) bool
	IsBlockedBy(id int64) bool
	SendFriendRequest(ctx context.Context, addresseeID int64) (*domain.FriendRequest, error)
	BlockUser(ctx context.Context, id int64) error
	UnblockUser(ctx context.Context, id int64) error
}

var (
	_ ChatStore   = (*chat.Store)(nil)
	_ FriendStore = (*friend.Store)(nil)
)

func parseInt64(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
