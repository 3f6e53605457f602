package events

import (
	"time"

	"edusocial/internal/domain"
)

// MessageReceived is delivered to every member of a room the client joined,
// and to room members as a notification when they are not in the room.
type MessageReceived struct {
	MessageID      int64                `json:"message_id"`
	RoomID         int64                `json:"room_id"`
	SenderID       int64                `json:"sender_id"`
	Content        string               `json:"content"`
	CreatedAt      time.Time            `json:"created_at"`
	Sender         *domain.UserSnapshot `json:"sender,omitempty"`
	FileAttachment *domain.Attachment   `json:"fileAttachment,omitempty"`
}

type MessageRead struct {
	RoomID    int64 `json:"room_id"`
	UserID    int64 `json:"user_id"`
	MessageID int64 `json:"message_id"`
}

type UserBlocked struct {
	UserID        int64 `json:"userId"`
	IsBlocked     bool  `json:"isBlocked"`
	InitiatedByMe bool  `json:"initiatedByMe"`
}

type UserUnblocked struct {
	UserID        int64 `json:"userId"`
	InitiatedByMe bool  `json:"initiatedByMe"`
}

type FriendRequestReceived struct {
	Friend      domain.FriendRequest `json:"friend"`
	AddresseeID int64                `json:"addressee_id"`
}

type FriendRequestAccepted struct {
	Friend      domain.FriendRequest `json:"friend"`
	RequesterID int64                `json:"requester_id"`
	AddresseeID int64                `json:"addressee_id"`
}

type FriendRequestRejected struct {
	FriendID    int64 `json:"friend_id"`
	RequesterID int64 `json:"requester_id"`
	AddresseeID int64 `json:"addressee_id"`
}

type FriendRemoved struct {
	FriendID      int64 `json:"friend_id"`
	UserID        int64 `json:"user_id"`
	RemovedUserID int64 `json:"removed_user_id"`
}

type FriendError struct {
	Error string `json:"error"`
	Event string `json:"event"`
}

type RoomRequest struct {
	RoomID int64 `json:"room_id"`
}

type AuthenticateRequest struct {
	EncryptedData string `json:"encryptedData"`
}
