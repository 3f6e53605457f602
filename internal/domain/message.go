package domain

import "strings"

const (
	PlaceholderMessagePrefix = "temp_msg_"
	OwnSenderName            = "You"
	UnknownSenderName        = "Unknown"
)

// Message is one bubble of the active conversation. State tracks optimistic
// sends; messages that came from the server are always confirmed.
type Message struct {
	ID             string       `json:"id"`
	Sender         string       `json:"sender"`
	SenderAvatar   string       `json:"sender_avatar,omitempty"`
	Content        string       `json:"content"`
	Time           string       `json:"time"`
	IsOwn          bool         `json:"is_own"`
	FileAttachment *Attachment  `json:"file_attachment,omitempty"`
	State          MessageState `json:"state"`
}

func IsPlaceholderMessage(id string) bool {
	return strings.HasPrefix(id, PlaceholderMessagePrefix)
}
