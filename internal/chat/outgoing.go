package chat

import (
	"edusocial/internal/domain"
	social_errors "edusocial/pkg/errors"
)

// outgoing tracks one optimistic send from placeholder to its final state.
// pending -> confirmed and pending -> failed are the only transitions.
type outgoing struct {
	placeholderID string
	roomID        string
	content       string
	state         domain.MessageState
}

func newOutgoing(placeholderID, roomID, content string) *outgoing {
	return &outgoing{
		placeholderID: placeholderID,
		roomID:        roomID,
		content:       content,
		state:         domain.MessageStatePending,
	}
}

func (o *outgoing) transition(to domain.MessageState) error {
	if o.state != domain.MessageStatePending || to == domain.MessageStatePending {
		return social_errors.ErrInvalidTransition
	}
	o.state = to
	return nil
}

func (o *outgoing) confirm() error { return o.transition(domain.MessageStateConfirmed) }

func (o *outgoing) fail() error { return o.transition(domain.MessageStateFailed) }
