package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"edusocial/internal/api"
	"edusocial/internal/domain"
	"edusocial/internal/events"
	"edusocial/internal/metrics"
	"edusocial/internal/notify"
	social_errors "edusocial/pkg/errors"
)

// LoadMessages activates roomID and replaces the message list with its most
// recent page. A response that arrives after the selection moved on is
// dropped.
func (s *Store) LoadMessages(ctx context.Context, roomID string) error {
	self, ok := s.self()
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.setActiveLocked(roomID)
	gen := s.generation
	if idx := s.indexOfConversationLocked(roomID); idx >= 0 {
		s.conversations[idx].Unread = 0
	}
	id, real := domain.ParseRoomID(roomID)
	s.loadingMessages = real
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	if !real {
		return nil
	}

	if err := s.api.MarkAsRead(ctx, self, id); err != nil {
		s.log.Debug("mark as read on open failed", zap.String("room_id", roomID), zap.Error(err))
	}
	page, err := s.api.ListMessages(ctx, self, id, s.cfg.MessageLimit)

	s.mu.Lock()
	if gen != s.generation || s.active != roomID {
		metrics.StaleFetches.WithLabelValues("messages").Inc()
		s.mu.Unlock()
		return nil
	}
	s.loadingMessages = false
	if err != nil {
		snap = s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)
		return fmt.Errorf("load messages: %w", err)
	}

	fetched := make(map[string]struct{}, len(page))
	loaded := make([]domain.Message, 0, len(page)+len(s.messages))
	for _, m := range page {
		msg := mapMessage(m, self)
		fetched[msg.ID] = struct{}{}
		s.recent.Add(msg.ID)
		loaded = append(loaded, msg)
	}
	// Pushes and optimistic sends that landed while the page was in flight.
	for _, m := range s.messages {
		if _, ok := fetched[m.ID]; !ok {
			loaded = append(loaded, m)
		}
	}
	s.messages = loaded
	if idx := s.indexOfConversationLocked(roomID); idx >= 0 {
		s.conversations[idx].Unread = 0
	}
	snap = s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	s.refreshInBackground()
	return nil
}

// SendMessage sends content to the active conversation. A placeholder
// conversation is promoted to a real room first. The message shows up as
// pending right away and is removed again if the send fails.
func (s *Store) SendMessage(ctx context.Context, content string, file *domain.Attachment) error {
	self, ok := s.self()
	if !ok {
		return nil
	}
	content = strings.TrimSpace(content)
	if content == "" && file == nil {
		return fmt.Errorf("send message: %w", social_errors.ErrInvalidInput)
	}

	s.mu.Lock()
	roomID := s.active
	s.mu.Unlock()
	if roomID == "" {
		return social_errors.ErrNoActiveConversation
	}

	if domain.IsPlaceholderRoom(roomID) {
		realID, err := s.promote(ctx, self, roomID)
		if err != nil {
			s.log.Warn("room creation failed", zap.String("placeholder", roomID), zap.Error(err))
			notify.Error(ctx, s.notifier, "Không thể tạo cuộc trò chuyện")
			return err
		}
		roomID = realID
	}
	numericRoomID, ok := domain.ParseRoomID(roomID)
	if !ok {
		return fmt.Errorf("send message to %q: %w", roomID, social_errors.ErrInvalidInput)
	}

	now := time.Now()
	placeholderID := newPlaceholderMessageID(now)
	out := newOutgoing(placeholderID, roomID, content)

	s.mu.Lock()
	s.outgoing[placeholderID] = out
	if s.active == roomID {
		s.messages = append(s.messages, domain.Message{
			ID:             placeholderID,
			Sender:         domain.OwnSenderName,
			Content:        content,
			Time:           domain.FormatClock(now),
			IsOwn:          true,
			FileAttachment: file,
			State:          domain.MessageStatePending,
		})
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	sent, err := s.api.SendMessage(ctx, api.SendMessageRequest{
		SenderID:       self,
		RoomID:         numericRoomID,
		Content:        content,
		FileAttachment: file,
	})

	s.mu.Lock()
	delete(s.outgoing, placeholderID)
	if s.owner != self {
		// The user changed while the send was in flight; nothing to patch.
		s.mu.Unlock()
		return err
	}
	if err != nil {
		if terr := out.fail(); terr != nil {
			// A push echo already confirmed it; the message exists server-side.
			s.mu.Unlock()
			s.log.Warn("send reported failure after echo confirmed it", zap.String("room_id", roomID), zap.Error(err))
			return nil
		}
		if idx := s.indexOfMessageLocked(placeholderID); idx >= 0 {
			s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
		}
		snap = s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)

		metrics.OptimisticRollbacks.WithLabelValues("send_message").Inc()
		s.log.Warn("send message failed", zap.String("room_id", roomID), zap.Error(err))
		notify.Error(ctx, s.notifier, sendFailureText(err))
		return err
	}

	if out.confirm() == nil {
		if idx := s.indexOfMessageLocked(placeholderID); idx >= 0 {
			msg := &s.messages[idx]
			msg.State = domain.MessageStateConfirmed
			if sent != nil && sent.MessageID != 0 {
				msg.ID = domain.FormatRoomID(sent.MessageID)
				s.recent.Add(msg.ID)
			}
			if sent != nil && !sent.CreatedAt.IsZero() {
				msg.Time = domain.FormatClock(sent.CreatedAt)
			}
		}
	}
	if idx := s.indexOfConversationLocked(roomID); idx >= 0 {
		c := &s.conversations[idx]
		c.LastMessage = domain.Preview(previewText(content, file), true)
		c.Time = domain.FormatClock(now)
		c.Unread = 0
		c.IsEmpty = false
		s.moveToFrontLocked(idx)
	}
	snap = s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	s.refreshInBackground()
	return nil
}

func sendFailureText(err error) string {
	var se *api.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "Gửi tin nhắn thất bại"
}

// promote creates the real room behind a placeholder and repoints the
// active id and the list entry in place. Concurrent sends from the same
// placeholder share one room creation; later ones reuse its result.
func (s *Store) promote(ctx context.Context, self int64, placeholder string) (string, error) {
	friendID, ok := domain.FriendIDFromPlaceholder(placeholder)
	if !ok {
		return "", fmt.Errorf("promote %q: %w", placeholder, social_errors.ErrInvalidInput)
	}
	v, err, _ := s.promoting.Do(placeholder, func() (any, error) {
		s.mu.Lock()
		realID, done := s.promoted[placeholder]
		s.mu.Unlock()
		if done {
			return realID, nil
		}
		return s.createRoom(ctx, self, friendID, placeholder)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) createRoom(ctx context.Context, self, friendID int64, placeholder string) (string, error) {
	id, err := s.api.CreateRoom(ctx, api.CreateRoomRequest{
		UserID:   self,
		RoomType: domain.RoomTypeDirect,
		Members:  []int64{friendID},
	})
	if err != nil {
		return "", err
	}
	realID := domain.FormatRoomID(id)

	s.mu.Lock()
	if s.owner != self {
		s.mu.Unlock()
		return realID, nil
	}
	s.promoted[placeholder] = realID
	existing := s.indexOfConversationLocked(realID)
	temp := s.indexOfConversationLocked(placeholder)
	switch {
	case existing >= 0:
		if temp >= 0 {
			s.conversations = append(s.conversations[:temp:temp], s.conversations[temp+1:]...)
			if temp < existing {
				existing--
			}
		}
		s.moveToFrontLocked(existing)
	case temp >= 0:
		s.conversations[temp].ID = realID
	}
	if s.active == placeholder {
		// Same conversation, new id: keep the messages on screen.
		s.active = realID
		s.syncRoomLocked(false)
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	s.log.Info("placeholder promoted", zap.String("placeholder", placeholder), zap.String("room_id", realID))
	return realID, nil
}

func (s *Store) handleMessageReceived(ev events.MessageReceived) {
	self, ok := s.self()
	if !ok {
		return
	}

	msgID := ""
	if ev.MessageID != 0 {
		msgID = domain.FormatRoomID(ev.MessageID)
	}
	roomID := domain.FormatRoomID(ev.RoomID)
	own := ev.SenderID == self
	content := strings.TrimSpace(ev.Content)

	s.mu.Lock()
	if msgID != "" && !s.recent.Add(msgID) {
		s.mu.Unlock()
		metrics.DuplicatePushes.Inc()
		return
	}

	refetch := false
	if idx := s.indexOfConversationLocked(roomID); idx < 0 {
		refetch = true
	} else {
		c := &s.conversations[idx]
		c.LastMessage = domain.Preview(previewText(content, ev.FileAttachment), own)
		c.Time = clockOrNow(ev.CreatedAt)
		c.IsEmpty = false
		if !own {
			c.Unread++
		}
		s.moveToFrontLocked(idx)
	}

	if roomID == s.active && (content != "" || ev.FileAttachment != nil) {
		s.mergeActiveLocked(ev, msgID, content, own)
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	if refetch {
		s.refreshInBackground()
	}
}

// mergeActiveLocked applies a pushed message to the open conversation: a
// self-authored echo takes over its pending placeholder, anything else is
// appended unless already present.
func (s *Store) mergeActiveLocked(ev events.MessageReceived, msgID, content string, own bool) {
	if msgID == "" {
		msgID = fmt.Sprintf("push_%d", time.Now().UnixNano())
	} else if s.indexOfMessageLocked(msgID) >= 0 {
		metrics.DuplicatePushes.Inc()
		return
	}

	msg := domain.Message{
		ID:             msgID,
		Sender:         ev.Sender.DisplayName(domain.UnknownSenderName),
		SenderAvatar:   ev.Sender.AvatarURL(),
		Content:        content,
		Time:           clockOrNow(ev.CreatedAt),
		IsOwn:          own,
		FileAttachment: ev.FileAttachment,
		State:          domain.MessageStateConfirmed,
	}

	if own {
		for i := range s.messages {
			m := s.messages[i]
			if !m.IsOwn || !domain.IsPlaceholderMessage(m.ID) || strings.TrimSpace(m.Content) != content {
				continue
			}
			if out, ok := s.outgoing[m.ID]; ok {
				if err := out.confirm(); err != nil {
					continue
				}
			}
			s.messages[i] = msg
			return
		}
	}
	s.messages = append(s.messages, msg)
}

func (s *Store) handleMessageRead(ev events.MessageRead) {
	self, ok := s.self()
	if !ok || ev.UserID == self || ev.RoomID == 0 {
		return
	}

	s.mu.Lock()
	key := domain.FormatRoomID(ev.RoomID)
	if s.lastRead[key] == ev.MessageID {
		s.mu.Unlock()
		return
	}
	s.lastRead[key] = ev.MessageID
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// handleConnectionChange re-joins the active room after a reconnect and
// re-fetches the list to pick up anything missed while offline.
func (s *Store) handleConnectionChange(connected bool) {
	if !connected {
		s.log.Info("chat transport disconnected")
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.syncRoomLocked(true)
	s.mu.Unlock()

	s.refreshInBackground()
}
