package api

import (
	"context"
	"time"

	"edusocial/internal/domain"
)

type ChatAPI interface {
	ListRooms(ctx context.Context, userID int64, page, limit int) ([]Room, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (int64, error)
	DeleteConversation(ctx context.Context, userID, roomID int64) error
	ListMessages(ctx context.Context, userID, roomID int64, limit int) ([]RoomMessage, error)
	SendMessage(ctx context.Context, req SendMessageRequest) (*SentMessage, error)
	MarkAsRead(ctx context.Context, userID, roomID int64) error
}

type FriendAPI interface {
	ListFriends(ctx context.Context, userID int64) ([]domain.FriendRequest, error)
	ListFriendRequests(ctx context.Context, userID int64, limit int) ([]domain.FriendRequest, error)
	SendFriendRequest(ctx context.Context, requesterID, addresseeID int64) (*domain.FriendRequest, error)
	ListBlocks(ctx context.Context, userID int64) ([]domain.BlockRecord, error)
	BlockUser(ctx context.Context, blockerID, blockedID int64) error
	UnblockUser(ctx context.Context, blockerID, blockedID int64) error
}

type Room struct {
	RoomID      int64           `json:"room_id"`
	RoomType    domain.RoomType `json:"room_type"`
	Name        string          `json:"name,omitempty"`
	CreatedBy   int64           `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UnreadCount int             `json:"unread_count"`
	LastMessage *RoomMessage    `json:"last_message,omitempty"`
	Members     []RoomMember    `json:"members,omitempty"`
}

type RoomMember struct {
	UserID            int64                `json:"user_id"`
	LastReadMessageID *int64               `json:"last_read_message_id,omitempty"`
	User              *domain.UserSnapshot `json:"user,omitempty"`
}

// Partner returns the first member that is not self.
func (r Room) Partner(self int64) *RoomMember {
	for i := range r.Members {
		if r.Members[i].UserID != self {
			return &r.Members[i]
		}
	}
	return nil
}

func (r Room) MemberIDs() []int64 {
	ids := make([]int64, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

type RoomMessage struct {
	MessageID      int64                `json:"message_id"`
	RoomID         int64                `json:"room_id,omitempty"`
	SenderID       int64                `json:"sender_id"`
	Content        string               `json:"content"`
	CreatedAt      time.Time            `json:"created_at"`
	Sender         *domain.UserSnapshot `json:"sender,omitempty"`
	FileAttachment *domain.Attachment   `json:"fileAttachment,omitempty"`
}

type SentMessage struct {
	MessageID int64     `json:"message_id"`
	RoomID    int64     `json:"room_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRoomRequest struct {
	UserID   int64           `json:"userId"`
	RoomType domain.RoomType `json:"room_type"`
	Members  []int64         `json:"members"`
	Name     string          `json:"name,omitempty"`
}

type SendMessageRequest struct {
	SenderID       int64              `json:"sender_id"`
	RoomID         int64              `json:"room_id"`
	Content        string             `json:"content"`
	FileAttachment *domain.Attachment `json:"fileAttachment,omitempty"`
}

type markReadRequest struct {
	UserID int64 `json:"user_id"`
	RoomID int64 `json:"room_id"`
}

type friendRequestBody struct {
	RequesterID int64 `json:"requester_id"`
	AddresseeID int64 `json:"addressee_id"`
}

type blockBody struct {
	BlockerID int64 `json:"blocker_id"`
	BlockedID int64 `json:"blocked_id"`
}
