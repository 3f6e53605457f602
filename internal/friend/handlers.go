package friend

import (
	"context"

	"go.uber.org/zap"

	"edusocial/internal/events"
	"edusocial/internal/notify"
)

func (s *Store) handleRequestReceived(ev events.FriendRequestReceived) {
	if _, ok := s.self(); !ok {
		return
	}

	s.mu.Lock()
	added := s.prependRequestLocked(ev.Friend)
	if !added {
		s.mu.Unlock()
		return
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	notify.Info(context.Background(), s.notifier,
		"Bạn có lời mời kết bạn mới từ "+ev.Friend.Requester.DisplayName("ai đó"))
}

// handleRequestAccepted drops the request and re-fetches contacts, where the
// new friendship now lives. Only the requester is told.
func (s *Store) handleRequestAccepted(ev events.FriendRequestAccepted) {
	self, ok := s.self()
	if !ok {
		return
	}

	s.mu.Lock()
	if s.removeRequestLocked(ev.Friend.ID) {
		snap := s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)
	} else {
		s.mu.Unlock()
	}
	s.inBackground("contacts", s.FetchContacts)

	if self == ev.Friend.RequesterID {
		notify.Success(context.Background(), s.notifier,
			ev.Friend.Addressee.DisplayName("Ai đó")+" đã chấp nhận lời mời kết bạn của bạn")
	}
}

func (s *Store) handleRequestRejected(ev events.FriendRequestRejected) {
	if _, ok := s.self(); !ok {
		return
	}

	s.mu.Lock()
	if !s.removeRequestLocked(ev.FriendID) {
		s.mu.Unlock()
		return
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// handleFriendRemoved drops the friendship locally before the re-fetch
// lands. The removed party gets a notice.
func (s *Store) handleFriendRemoved(ev events.FriendRemoved) {
	self, ok := s.self()
	if !ok {
		return
	}

	other := ev.RemovedUserID
	if other == self {
		other = ev.UserID
	}

	s.mu.Lock()
	before := len(s.contacts)
	kept := s.contacts[:0:0]
	for _, c := range s.contacts {
		if (ev.FriendID != 0 && c.FriendshipID == ev.FriendID) || (other != 0 && c.ID == other) {
			continue
		}
		kept = append(kept, c)
	}
	s.contacts = kept
	changed := len(kept) != before
	if s.removeRequestLocked(ev.FriendID) {
		changed = true
	}
	if changed {
		snap := s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)
	} else {
		s.mu.Unlock()
	}
	s.inBackground("contacts", s.FetchContacts)

	if self == ev.RemovedUserID {
		notify.Info(context.Background(), s.notifier, "Bạn đã bị hủy kết bạn")
	}
}

func (s *Store) handleFriendError(ev events.FriendError) {
	s.log.Warn("friend socket error", zap.String("event", ev.Event), zap.String("error", ev.Error))
}

// handleUserBlocked records a block in the set matching who initiated it.
// Both directions re-fetch contacts.
func (s *Store) handleUserBlocked(ev events.UserBlocked) {
	if _, ok := s.self(); !ok || ev.UserID == 0 {
		return
	}

	s.mu.Lock()
	if ev.InitiatedByMe {
		s.blocked[ev.UserID] = struct{}{}
	} else {
		s.blockedBy[ev.UserID] = struct{}{}
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	if ev.InitiatedByMe {
		s.inBackground("blocks", s.FetchBlockedUsers)
	}
	s.inBackground("contacts", s.FetchContacts)
}

func (s *Store) handleUserUnblocked(ev events.UserUnblocked) {
	if _, ok := s.self(); !ok || ev.UserID == 0 {
		return
	}

	s.mu.Lock()
	if ev.InitiatedByMe {
		s.removeBlockedLocked(ev.UserID)
	} else {
		delete(s.blockedBy, ev.UserID)
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	s.inBackground("contacts", s.FetchContacts)
}
