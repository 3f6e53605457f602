package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapStripsDataWrapper(t *testing.T) {
	raw := json.RawMessage(`{"data": {"room_id": 4, "user_id": 2, "message_id": 99}}`)

	var ev MessageRead
	require.NoError(t, json.Unmarshal(Unwrap(raw), &ev))
	assert.Equal(t, MessageRead{RoomID: 4, UserID: 2, MessageID: 99}, ev)
}

func TestUnwrapLeavesBarePayload(t *testing.T) {
	raw := json.RawMessage(`{"room_id": 4, "user_id": 2, "message_id": 99}`)
	assert.JSONEq(t, string(raw), string(Unwrap(raw)))
}

func TestUnwrapIgnoresScalarData(t *testing.T) {
	raw := json.RawMessage(`{"data": "x", "room_id": 1}`)
	assert.JSONEq(t, string(raw), string(Unwrap(raw)))
}
