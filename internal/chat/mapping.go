package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"edusocial/internal/api"
	"edusocial/internal/domain"
)

func mapRoom(room api.Room, self int64) domain.Conversation {
	partner := room.Partner(self)
	var partnerUser *domain.UserSnapshot
	if partner != nil {
		partnerUser = partner.User
	}

	name := room.Name
	if name == "" && partnerUser != nil && partnerUser.Fullname != "" {
		name = partnerUser.Fullname
	}
	if name == "" {
		name = domain.DefaultConversationName
	}

	conv := domain.Conversation{
		ID:          domain.FormatRoomID(room.RoomID),
		Name:        name,
		LastMessage: domain.EmptyConversationText,
		Unread:      max(room.UnreadCount, 0),
		IsGroup:     room.RoomType == domain.RoomTypeGroup,
		MemberIDs:   room.MemberIDs(),
		IsEmpty:     room.LastMessage == nil,
	}
	if room.RoomType == domain.RoomTypeDirect {
		conv.Avatar = partnerUser.AvatarURL()
	}
	if last := room.LastMessage; last != nil {
		if last.Content != "" {
			conv.LastMessage = domain.Preview(last.Content, last.SenderID == self)
		}
		conv.Time = domain.FormatClock(last.CreatedAt)
	}
	return conv
}

// partnerLastRead returns the partner's read marker for direct rooms.
func partnerLastRead(room api.Room, self int64) (int64, bool) {
	if room.RoomType != domain.RoomTypeDirect {
		return 0, false
	}
	partner := room.Partner(self)
	if partner == nil || partner.LastReadMessageID == nil || *partner.LastReadMessageID == 0 {
		return 0, false
	}
	return *partner.LastReadMessageID, true
}

func mapMessage(msg api.RoomMessage, self int64) domain.Message {
	return domain.Message{
		ID:             domain.FormatRoomID(msg.MessageID),
		Sender:         msg.Sender.DisplayName(domain.UnknownSenderName),
		SenderAvatar:   msg.Sender.AvatarURL(),
		Content:        strings.TrimSpace(msg.Content),
		Time:           domain.FormatClock(msg.CreatedAt),
		IsOwn:          msg.SenderID == self,
		FileAttachment: msg.FileAttachment,
		State:          domain.MessageStateConfirmed,
	}
}

// previewText is what the list shows for a message; attachments without
// text show the file name.
func previewText(content string, file *domain.Attachment) string {
	if content == "" && file != nil {
		return file.Filename
	}
	return content
}

func newPlaceholderMessageID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s%d_%s", domain.PlaceholderMessagePrefix, now.UnixMilli(), suffix)
}

func clockOrNow(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return domain.FormatClock(t)
}
