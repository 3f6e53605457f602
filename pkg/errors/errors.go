package social_errors

import (
	"errors"
)

// Common errors
var (
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrNotConnected         = errors.New("socket not connected")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrRoomNotCreated       = errors.New("chat room creation failed")
)
