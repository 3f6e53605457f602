package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"edusocial/internal/domain"
	"edusocial/internal/metrics"
	"edusocial/internal/notify"
	social_errors "edusocial/pkg/errors"
)

// FetchConversations replaces the list with the backend's first page. An
// active conversation missing from the response (a fresh placeholder or an
// empty room) is kept at the front.
func (s *Store) FetchConversations(ctx context.Context) error {
	self, ok := s.self()
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.listIssued++
	seq := s.listIssued
	s.loadingConversations = true
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	rooms, err := s.api.ListRooms(ctx, self, 1, s.cfg.ConversationLimit)

	s.mu.Lock()
	if seq < s.listApplied {
		metrics.StaleFetches.WithLabelValues("conversations").Inc()
		s.mu.Unlock()
		return nil
	}
	if seq == s.listIssued {
		s.loadingConversations = false
	}
	if err != nil {
		snap = s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)
		return fmt.Errorf("fetch conversations: %w", err)
	}
	s.listApplied = seq

	mapped := make([]domain.Conversation, 0, len(rooms)+1)
	groups := 0
	for _, room := range rooms {
		mapped = append(mapped, mapRoom(room, self))
		if room.RoomType == domain.RoomTypeGroup {
			groups++
		}
		if id, ok := partnerLastRead(room, self); ok {
			s.lastRead[domain.FormatRoomID(room.RoomID)] = id
		}
	}

	if s.active != "" {
		inResponse := false
		for _, c := range mapped {
			if c.ID == s.active {
				inResponse = true
				break
			}
		}
		if idx := s.indexOfConversationLocked(s.active); !inResponse && idx >= 0 {
			mapped = append([]domain.Conversation{s.conversations[idx]}, mapped...)
		}
	}

	s.conversations = mapped
	s.groupCount = groups
	snap = s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	s.saveToCache(ctx, self, snap)
	return nil
}

// StartChat opens the direct conversation with friendID. An existing room
// is activated and loaded; otherwise a placeholder entry is created and the
// real room is created on the first send.
func (s *Store) StartChat(ctx context.Context, friendID int64) (string, error) {
	self, ok := s.self()
	if !ok {
		return "", nil
	}
	if friendID <= 0 || friendID == self {
		return "", fmt.Errorf("start chat with %d: %w", friendID, social_errors.ErrInvalidInput)
	}

	s.mu.Lock()
	for _, c := range s.conversations {
		if !domain.IsPlaceholderRoom(c.ID) && c.IsDirectWith(friendID) {
			s.mu.Unlock()
			if err := s.LoadMessages(ctx, c.ID); err != nil {
				s.log.Warn("failed to load messages", zap.String("room_id", c.ID), zap.Error(err))
			}
			return c.ID, nil
		}
	}

	placeholder := domain.PlaceholderRoomID(friendID)
	if s.indexOfConversationLocked(placeholder) < 0 {
		// A fresh placeholder; an earlier room for it is gone from the list.
		delete(s.promoted, placeholder)
		entry := domain.Conversation{
			ID:          placeholder,
			Name:        domain.DefaultConversationName,
			LastMessage: domain.EmptyConversationText,
			MemberIDs:   []int64{self, friendID},
			IsEmpty:     true,
		}
		if s.contacts != nil {
			if contact, ok := s.contacts.Contact(friendID); ok {
				entry.Name = contact.Name
				entry.Avatar = contact.Avatar
			}
		}
		s.conversations = append([]domain.Conversation{entry}, s.conversations...)
	}
	if s.active != placeholder {
		s.setActiveLocked(placeholder)
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
	return placeholder, nil
}

// SetActiveConversation changes the selection without fetching. An empty id
// clears it.
func (s *Store) SetActiveConversation(id string) {
	s.mu.Lock()
	if id == s.active {
		s.mu.Unlock()
		return
	}
	s.setActiveLocked(id)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// MarkConversationAsRead zeroes the badge right away and confirms with the
// backend. A backend failure is returned but not rolled back.
func (s *Store) MarkConversationAsRead(ctx context.Context, roomID string) error {
	self, ok := s.self()
	if !ok {
		return nil
	}
	id, ok := domain.ParseRoomID(roomID)
	if !ok {
		return nil
	}

	s.mu.Lock()
	if idx := s.indexOfConversationLocked(roomID); idx >= 0 && s.conversations[idx].Unread != 0 {
		s.conversations[idx].Unread = 0
		snap := s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)
	} else {
		s.mu.Unlock()
	}

	if err := s.api.MarkAsRead(ctx, self, id); err != nil {
		s.log.Warn("mark as read failed", zap.String("room_id", roomID), zap.Error(err))
		return err
	}
	return nil
}

// DeleteConversation removes the room from the list before the backend
// call. On failure the list is re-fetched rather than patched back.
func (s *Store) DeleteConversation(ctx context.Context, roomID string) error {
	self, ok := s.self()
	if !ok {
		return nil
	}

	s.mu.Lock()
	if idx := s.indexOfConversationLocked(roomID); idx >= 0 {
		s.conversations = append(s.conversations[:idx:idx], s.conversations[idx+1:]...)
	}
	if s.active == roomID {
		s.setActiveLocked("")
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	id, ok := domain.ParseRoomID(roomID)
	if !ok {
		// Placeholders never reached the backend.
		return nil
	}
	if err := s.api.DeleteConversation(ctx, self, id); err != nil {
		s.log.Warn("delete conversation failed", zap.String("room_id", roomID), zap.Error(err))
		metrics.OptimisticRollbacks.WithLabelValues("delete_conversation").Inc()
		notify.Error(ctx, s.notifier, "Không thể xóa đoạn chat")
		s.refreshInBackground()
		return err
	}
	notify.Success(ctx, s.notifier, "Đã xóa đoạn chat")
	return nil
}
