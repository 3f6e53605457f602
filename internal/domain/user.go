package domain

// UserSnapshot is the denormalized profile the backend embeds in rooms,
// messages, friend rows and push payloads.
type UserSnapshot struct {
	UserID   int64          `json:"user_id"`
	Username string         `json:"username"`
	Fullname string         `json:"fullname"`
	Email    string         `json:"email,omitempty"`
	Phone    *string        `json:"phone,omitempty"`
	Avatar   *string        `json:"avatar,omitempty"`
	Status   PresenceStatus `json:"status,omitempty"`
}

// DisplayName prefers the full name, then the username, then fallback.
func (u *UserSnapshot) DisplayName(fallback string) string {
	if u == nil {
		return fallback
	}
	if u.Fullname != "" {
		return u.Fullname
	}
	if u.Username != "" {
		return u.Username
	}
	return fallback
}

func (u *UserSnapshot) AvatarURL() string {
	if u == nil || u.Avatar == nil {
		return ""
	}
	return *u.Avatar
}
