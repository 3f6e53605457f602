package friend

import (
	"context"
	"errors"
	"sync"
	"time"

	"edusocial/internal/domain"
)

var errBackend = errors.New("backend down")

// fakeBackend holds relationship rows and block records for every user, so
// two stores can share it.
type fakeBackend struct {
	mu       sync.Mutex
	users    map[int64]*domain.UserSnapshot
	rows     []domain.FriendRequest
	blocks   []domain.BlockRecord
	nextID   int64
	blockErr error
	sendErr  error
	listErr  error

	listFriendsCalls int
	listBlocksCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: map[int64]*domain.UserSnapshot{
			1: {UserID: 1, Fullname: "An"},
			2: {UserID: 2, Fullname: "Bình"},
			3: {UserID: 3, Fullname: "Chi"},
		},
		nextID: 10,
	}
}

func (f *fakeBackend) addFriendship(a, b int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows = append(f.rows, domain.FriendRequest{
		ID: f.nextID, RequesterID: a, AddresseeID: b, Status: domain.FriendStatusAccepted,
		Requester: f.users[a], Addressee: f.users[b],
	})
	return f.nextID
}

func (f *fakeBackend) accept(id int64) domain.FriendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			now := time.Now()
			f.rows[i].Status = domain.FriendStatusAccepted
			f.rows[i].AcceptedAt = &now
			return f.rows[i]
		}
	}
	return domain.FriendRequest{}
}

func (f *fakeBackend) friendsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listFriendsCalls
}

func (f *fakeBackend) ListFriends(_ context.Context, userID int64) ([]domain.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFriendsCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.FriendRequest
	for _, r := range f.rows {
		if r.Status == domain.FriendStatusAccepted && (r.RequesterID == userID || r.AddresseeID == userID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListFriendRequests(_ context.Context, userID int64, limit int) ([]domain.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FriendRequest
	for _, r := range f.rows {
		if r.Status == domain.FriendStatusPending && (r.RequesterID == userID || r.AddresseeID == userID) {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBackend) SendFriendRequest(_ context.Context, requesterID, addresseeID int64) (*domain.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	r := domain.FriendRequest{
		ID: f.nextID, RequesterID: requesterID, AddresseeID: addresseeID, Status: domain.FriendStatusPending,
		CreatedAt: time.Now(), Requester: f.users[requesterID], Addressee: f.users[addresseeID],
	}
	f.rows = append(f.rows, r)
	return &r, nil
}

func (f *fakeBackend) ListBlocks(_ context.Context, userID int64) ([]domain.BlockRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listBlocksCalls++
	var out []domain.BlockRecord
	for _, b := range f.blocks {
		if b.BlockerID == userID || b.BlockedID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBackend) BlockUser(_ context.Context, blockerID, blockedID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockErr != nil {
		return f.blockErr
	}
	f.nextID++
	f.blocks = append(f.blocks, domain.BlockRecord{
		ID: f.nextID, BlockerID: blockerID, BlockedID: blockedID, CreatedAt: time.Now(), Blocked: f.users[blockedID],
	})
	return nil
}

func (f *fakeBackend) UnblockUser(_ context.Context, blockerID, blockedID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockErr != nil {
		return f.blockErr
	}
	kept := f.blocks[:0]
	for _, b := range f.blocks {
		if b.BlockerID != blockerID || b.BlockedID != blockedID {
			kept = append(kept, b)
		}
	}
	f.blocks = kept
	return nil
}

type fakeContactCache struct {
	mu          sync.Mutex
	contacts    map[int64][]domain.Contact
	invalidated []int64
}

func (c *fakeContactCache) GetContacts(_ context.Context, userID int64) ([]domain.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contacts[userID], nil
}

func (c *fakeContactCache) SetContacts(_ context.Context, userID int64, contacts []domain.Contact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contacts == nil {
		c.contacts = make(map[int64][]domain.Contact)
	}
	c.contacts[userID] = contacts
	return nil
}

func (c *fakeContactCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.contacts, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}
