package httpdto

import "edusocial/internal/domain"

type StartChatRequest struct {
	FriendID int64 `json:"friend_id" binding:"required,gt=0"`
}

type StartChatResponse struct {
	ConversationID string `json:"conversation_id"`
}

// SetActiveRequest selects a conversation; an empty id clears the selection.
type SetActiveRequest struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessageRequest struct {
	Content        string             `json:"content"`
	FileAttachment *domain.Attachment `json:"fileAttachment,omitempty"`
}

type FriendRequestRequest struct {
	AddresseeID int64 `json:"addressee_id" binding:"required,gt=0"`
}
