package domain

import "time"

// ConversationList is the persisted form of the conversation list used to
// warm-start the store.
type ConversationList struct {
	Conversations      []Conversation   `json:"conversations"`
	LastReadMessageIDs map[string]int64 `json:"last_read_message_ids,omitempty"`
	GroupCount         int              `json:"group_count"`
	SavedAt            time.Time        `json:"saved_at"`
}
