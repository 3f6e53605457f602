package domain

import (
	"strconv"
	"strings"
	"time"
)

const (
	PlaceholderRoomPrefix = "temp_"

	OwnPreviewPrefix        = "Bạn: "
	EmptyConversationText   = "Bắt đầu cuộc trò chuyện"
	DefaultConversationName = "Cuộc trò chuyện"
)

// Conversation is one entry of the conversation list. ID holds a
// placeholder ("temp_<friendId>") until the backend assigns a room id.
type Conversation struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Avatar      string  `json:"avatar,omitempty"`
	LastMessage string  `json:"last_message"`
	Time        string  `json:"time"`
	Unread      int     `json:"unread"`
	IsGroup     bool    `json:"is_group"`
	MemberIDs   []int64 `json:"member_ids"`
	IsEmpty     bool    `json:"is_empty"`
}

// IsDirectWith reports whether c is a persisted two-member direct room
// that includes friendID.
func (c Conversation) IsDirectWith(friendID int64) bool {
	if c.IsGroup || len(c.MemberIDs) != 2 {
		return false
	}
	for _, id := range c.MemberIDs {
		if id == friendID {
			return true
		}
	}
	return false
}

func (c Conversation) Clone() Conversation {
	c.MemberIDs = append([]int64(nil), c.MemberIDs...)
	return c
}

func PlaceholderRoomID(friendID int64) string {
	return PlaceholderRoomPrefix + strconv.FormatInt(friendID, 10)
}

func IsPlaceholderRoom(id string) bool {
	return strings.HasPrefix(id, PlaceholderRoomPrefix)
}

// FriendIDFromPlaceholder extracts the friend id from "temp_<friendId>".
func FriendIDFromPlaceholder(id string) (int64, bool) {
	if !IsPlaceholderRoom(id) {
		return 0, false
	}
	friendID, err := strconv.ParseInt(strings.TrimPrefix(id, PlaceholderRoomPrefix), 10, 64)
	if err != nil || friendID <= 0 {
		return 0, false
	}
	return friendID, true
}

// ParseRoomID converts a persisted room id to its numeric form.
// Placeholders and malformed ids are rejected.
func ParseRoomID(id string) (int64, bool) {
	if id == "" || IsPlaceholderRoom(id) {
		return 0, false
	}
	roomID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return roomID, true
}

func FormatRoomID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Preview renders the list preview for a message, prefixing the viewer's own.
func Preview(content string, own bool) string {
	if own {
		return OwnPreviewPrefix + content
	}
	return content
}

// FormatClock renders a timestamp the way the list and bubbles show it.
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04")
}
