package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"edusocial/internal/api"
	"edusocial/internal/domain"
)

var errBackend = errors.New("backend down")

// fakeChatAPI is an in-memory backend. Gates let tests hold a call open.
type fakeChatAPI struct {
	mu        sync.Mutex
	self      int64
	rooms     []api.Room
	messages  map[int64][]api.RoomMessage
	nextRoom  int64
	nextMsg   int64
	createErr error
	sendErr   error
	deleteErr error
	listErr   error

	messagesGate map[int64]chan struct{}
	sendGate     chan struct{}
	sendStarted  chan struct{}

	// createStarted should be buffered; CreateRoom never blocks on it.
	createGate    chan struct{}
	createStarted chan struct{}

	listRoomsCalls int
	listMsgCalls   []int64
	created        []api.CreateRoomRequest
	markedRead     []int64
}

func newFakeChatAPI(self int64) *fakeChatAPI {
	return &fakeChatAPI{
		self:         self,
		messages:     make(map[int64][]api.RoomMessage),
		nextRoom:     100,
		nextMsg:      500,
		messagesGate: make(map[int64]chan struct{}),
	}
}

func snapshotUser(id int64, name string) *domain.UserSnapshot {
	return &domain.UserSnapshot{UserID: id, Fullname: name}
}

func (f *fakeChatAPI) addDirectRoom(id, friendID int64, unread int) {
	f.addDirectRoomFor(f.self, id, friendID, unread)
}

func (f *fakeChatAPI) addDirectRoomFor(userID, id, friendID int64, unread int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, api.Room{
		RoomID:      id,
		RoomType:    domain.RoomTypeDirect,
		UnreadCount: unread,
		Members: []api.RoomMember{
			{UserID: userID, User: snapshotUser(userID, "Me")},
			{UserID: friendID, User: snapshotUser(friendID, "Friend")},
		},
	})
}

// ListRooms returns the rooms userID is a member of.
func (f *fakeChatAPI) ListRooms(_ context.Context, userID int64, _, _ int) ([]api.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listRoomsCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var rooms []api.Room
	for _, r := range f.rooms {
		for _, m := range r.Members {
			if m.UserID == userID {
				rooms = append(rooms, r)
				break
			}
		}
	}
	return rooms, nil
}

func (f *fakeChatAPI) roomsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listRoomsCalls
}

func (f *fakeChatAPI) CreateRoom(ctx context.Context, req api.CreateRoomRequest) (int64, error) {
	if f.createStarted != nil {
		select {
		case f.createStarted <- struct{}{}:
		default:
		}
	}
	if f.createGate != nil {
		select {
		case <-f.createGate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := f.nextRoom
	f.nextRoom++
	members := []api.RoomMember{{UserID: req.UserID}}
	for _, m := range req.Members {
		members = append(members, api.RoomMember{UserID: m, User: snapshotUser(m, "Friend")})
	}
	for _, r := range f.rooms {
		if r.RoomID == id {
			return id, nil
		}
	}
	f.rooms = append([]api.Room{{RoomID: id, RoomType: req.RoomType, Members: members}}, f.rooms...)
	return id, nil
}

func (f *fakeChatAPI) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeChatAPI) DeleteConversation(_ context.Context, _, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, r := range f.rooms {
		if r.RoomID == roomID {
			f.rooms = append(f.rooms[:i], f.rooms[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeChatAPI) ListMessages(ctx context.Context, _, roomID int64, _ int) ([]api.RoomMessage, error) {
	f.mu.Lock()
	f.listMsgCalls = append(f.listMsgCalls, roomID)
	gate := f.messagesGate[roomID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.RoomMessage(nil), f.messages[roomID]...), nil
}

func (f *fakeChatAPI) messageCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.listMsgCalls...)
}

func (f *fakeChatAPI) SendMessage(ctx context.Context, req api.SendMessageRequest) (*api.SentMessage, error) {
	if f.sendStarted != nil {
		close(f.sendStarted)
	}
	if f.sendGate != nil {
		select {
		case <-f.sendGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	id := f.nextMsg
	f.nextMsg++
	now := time.Now()
	msg := api.RoomMessage{MessageID: id, RoomID: req.RoomID, SenderID: req.SenderID, Content: req.Content, CreatedAt: now}
	f.messages[req.RoomID] = append(f.messages[req.RoomID], msg)
	for i, r := range f.rooms {
		if r.RoomID == req.RoomID {
			r.LastMessage = &msg
			f.rooms = append([]api.Room{r}, append(f.rooms[:i:i], f.rooms[i+1:]...)...)
			break
		}
	}
	return &api.SentMessage{MessageID: id, RoomID: req.RoomID, Content: req.Content, CreatedAt: now}, nil
}

func (f *fakeChatAPI) MarkAsRead(_ context.Context, _, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, roomID)
	for i := range f.rooms {
		if f.rooms[i].RoomID == roomID {
			f.rooms[i].UnreadCount = 0
		}
	}
	return nil
}

type fakeContacts map[int64]domain.Contact

func (f fakeContacts) Contact(id int64) (domain.Contact, bool) {
	c, ok := f[id]
	return c, ok
}

type fakeCache struct {
	mu          sync.Mutex
	lists       map[int64]*domain.ConversationList
	saves       int
	invalidated []int64
}

func (c *fakeCache) GetConversationList(_ context.Context, userID int64) (*domain.ConversationList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists[userID], nil
}

func (c *fakeCache) SetConversationList(_ context.Context, userID int64, list *domain.ConversationList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lists == nil {
		c.lists = make(map[int64]*domain.ConversationList)
	}
	c.lists[userID] = list
	c.saves++
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}
