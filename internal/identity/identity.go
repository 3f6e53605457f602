package identity

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Resolver yields the acting user's id. ok=false means "not logged in yet";
// callers treat it as a no-op condition, never as an error.
type Resolver interface {
	UserID() (int64, bool)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func() (int64, bool)

func (f ResolverFunc) UserID() (int64, bool) { return f() }

// Static always resolves to the same id. Zero or negative means absent.
type Static int64

func (s Static) UserID() (int64, bool) {
	return int64(s), s > 0
}

// Storage is the persisted client-side key/value storage identity is read from.
type Storage interface {
	Get(key string) (string, bool)
}

const (
	KeyUserID      = "user_id"
	KeyUser        = "user"
	KeyAccessToken = "access_token"
	KeyToken       = "token"
)

// SessionResolver reads identity from storage on every call so a login or
// logout performed elsewhere is picked up without rebuilding the stores.
type SessionResolver struct {
	storage Storage
	parser  *jwt.Parser
}

func NewSessionResolver(storage Storage) *SessionResolver {
	return &SessionResolver{storage: storage, parser: jwt.NewParser()}
}

// UserID checks, in order: the cached user id, the stored user object,
// then the claims of the stored access token.
func (r *SessionResolver) UserID() (int64, bool) {
	if r == nil || r.storage == nil {
		return 0, false
	}
	if raw, ok := r.storage.Get(KeyUserID); ok {
		if id, ok := parseID(raw); ok {
			return id, true
		}
	}
	if raw, ok := r.storage.Get(KeyUser); ok {
		if id, ok := userIDFromProfile(raw); ok {
			return id, true
		}
	}
	for _, key := range []string{KeyAccessToken, KeyToken} {
		if raw, ok := r.storage.Get(key); ok {
			if id, ok := r.userIDFromToken(raw); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func userIDFromProfile(raw string) (int64, bool) {
	var profile map[string]any
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return 0, false
	}
	for _, key := range []string{"user_id", "id"} {
		if id, ok := idFromAny(profile[key]); ok {
			return id, true
		}
	}
	return 0, false
}

// userIDFromToken reads claims without verifying the signature. The client
// never holds the signing key; the backend verifies every request.
func (r *SessionResolver) userIDFromToken(raw string) (int64, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := r.parser.ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return 0, false
	}
	if id, ok := idFromAny(claims["user_id"]); ok {
		return id, true
	}
	if sub, err := claims.GetSubject(); err == nil {
		return parseID(sub)
	}
	return 0, false
}

func idFromAny(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 && t == float64(int64(t)) {
			return int64(t), true
		}
	case string:
		return parseID(t)
	case json.Number:
		return parseID(t.String())
	}
	return 0, false
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
