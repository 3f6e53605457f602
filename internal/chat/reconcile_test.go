package chat

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusocial/internal/api"
	"edusocial/internal/domain"
	social_errors "edusocial/pkg/errors"
)

func TestRecentSetTrimsToNewest(t *testing.T) {
	r := newRecentSet(10, 5)
	for i := 0; i < 10; i++ {
		assert.True(t, r.Add(strconv.Itoa(i)))
	}
	assert.False(t, r.Add("3"))
	assert.Equal(t, 10, len(r.order))

	assert.True(t, r.Add("10"))
	assert.Equal(t, 5, len(r.order))
	assert.NotContains(t, r.seen, "5")
	assert.Contains(t, r.seen, "6")
	assert.Contains(t, r.seen, "10")
}

func TestOutgoingTransitions(t *testing.T) {
	o := newOutgoing("temp_msg_1_abc", "10", "hi")
	require.NoError(t, o.confirm())
	assert.ErrorIs(t, o.confirm(), social_errors.ErrInvalidTransition)
	assert.ErrorIs(t, o.fail(), social_errors.ErrInvalidTransition)

	f := newOutgoing("temp_msg_2_abc", "10", "hi")
	require.NoError(t, f.fail())
	assert.ErrorIs(t, f.confirm(), social_errors.ErrInvalidTransition)
	assert.ErrorIs(t, f.transition(domain.MessageStatePending), social_errors.ErrInvalidTransition)
}

func TestPlaceholderMessageID(t *testing.T) {
	id := newPlaceholderMessageID(testTime)
	assert.True(t, domain.IsPlaceholderMessage(id))
	assert.Regexp(t, `^temp_msg_\d+_[0-9a-f]{9}$`, id)
}

func TestMapRoomUsesPartnerAndOwnPrefix(t *testing.T) {
	avatar := "a.png"
	room := api.Room{
		RoomID:   5,
		RoomType: domain.RoomTypeDirect,
		LastMessage: &api.RoomMessage{
			SenderID:  selfID,
			Content:   "see you",
			CreatedAt: testTime,
		},
		UnreadCount: -2,
		Members: []api.RoomMember{
			{UserID: selfID},
			{UserID: 2, User: &domain.UserSnapshot{UserID: 2, Fullname: "Minh", Avatar: &avatar}},
		},
	}

	c := mapRoom(room, selfID)
	assert.Equal(t, "5", c.ID)
	assert.Equal(t, "Minh", c.Name)
	assert.Equal(t, "a.png", c.Avatar)
	assert.Equal(t, "Bạn: see you", c.LastMessage)
	assert.Equal(t, domain.FormatClock(testTime), c.Time)
	assert.Zero(t, c.Unread)
	assert.False(t, c.IsEmpty)
	assert.True(t, c.IsDirectWith(2))
}

func TestMapRoomFallbackName(t *testing.T) {
	c := mapRoom(api.Room{RoomID: 6, RoomType: domain.RoomTypeGroup}, selfID)
	assert.Equal(t, domain.DefaultConversationName, c.Name)
	assert.Empty(t, c.Avatar)
	assert.True(t, c.IsEmpty)
}

var testTime = mustTime("2024-05-01T08:30:00Z")

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
