package domain

import "time"

type FriendRequest struct {
	ID          int64         `json:"id"`
	RequesterID int64         `json:"requester_id"`
	AddresseeID int64         `json:"addressee_id"`
	Status      FriendStatus  `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	AcceptedAt  *time.Time    `json:"accepted_at,omitempty"`
	Requester   *UserSnapshot `json:"requester,omitempty"`
	Addressee   *UserSnapshot `json:"addressee,omitempty"`
}

// Contact is an accepted friend seen from the acting user's side.
// ID is the friend's user id; FriendshipID is the relationship row.
type Contact struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Avatar       string         `json:"avatar,omitempty"`
	Status       PresenceStatus `json:"status"`
	IsFriend     bool           `json:"is_friend"`
	FriendshipID int64          `json:"friendship_id"`
}

type BlockRecord struct {
	ID        int64         `json:"id"`
	BlockerID int64         `json:"blocker_id"`
	BlockedID int64         `json:"blocked_id"`
	CreatedAt time.Time     `json:"created_at"`
	Blocked   *UserSnapshot `json:"blocked,omitempty"`
}

// ContactFromFriendship projects a relationship row onto the other party.
func ContactFromFriendship(row FriendRequest, self int64) Contact {
	friend := row.Requester
	friendID := row.RequesterID
	if row.RequesterID == self {
		friend = row.Addressee
		friendID = row.AddresseeID
	}
	if friend != nil && friend.UserID != 0 {
		friendID = friend.UserID
	}
	status := PresenceOffline
	if friend != nil && friend.Status != "" {
		status = friend.Status
	}
	return Contact{
		ID:           friendID,
		Name:         friend.DisplayName(UnknownSenderName),
		Avatar:       friend.AvatarURL(),
		Status:       status,
		IsFriend:     true,
		FriendshipID: row.ID,
	}
}
