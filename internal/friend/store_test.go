package friend

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusocial/internal/api"
	"edusocial/internal/domain"
	"edusocial/internal/events"
	"edusocial/internal/identity"
	"edusocial/internal/notify/notifytest"
	"edusocial/internal/socket/sockettest"
	social_errors "edusocial/pkg/errors"
)

type harness struct {
	store   *Store
	friends *sockettest.Transport
	chat    *sockettest.Transport
	notes   *notifytest.Recorder
}

func newHarness(t *testing.T, backend *fakeBackend, self int64, deps ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		friends: sockettest.New(),
		chat:    sockettest.New(),
		notes:   &notifytest.Recorder{},
	}
	d := Deps{
		API:      backend,
		Friends:  h.friends,
		Chat:     h.chat,
		Identity: identity.Static(self),
		Notifier: h.notes,
	}
	for _, fn := range deps {
		fn(&d)
	}
	h.store = NewStore(d, DefaultConfig())
	h.store.Start(context.Background())
	t.Cleanup(h.store.Stop)
	return h
}

func (h *harness) settle() {
	h.store.bg.Wait()
}

func contactIDs(s Snapshot) []int64 {
	ids := make([]int64, 0, len(s.Contacts))
	for _, c := range s.Contacts {
		ids = append(ids, c.ID)
	}
	return ids
}

func requestIDs(s Snapshot) []int64 {
	ids := make([]int64, 0, len(s.FriendRequests))
	for _, r := range s.FriendRequests {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestStartLoadsContactsFromEitherSide(t *testing.T) {
	backend := newFakeBackend()
	asRequester := backend.addFriendship(1, 2)
	asAddressee := backend.addFriendship(3, 1)

	h := newHarness(t, backend, 1)
	snap := h.store.Snapshot()
	assert.Equal(t, []int64{2, 3}, contactIDs(snap))
	assert.False(t, snap.LoadingContacts)

	c, ok := h.store.Contact(3)
	require.True(t, ok)
	assert.Equal(t, "Chi", c.Name)
	assert.Equal(t, asAddressee, c.FriendshipID)
	assert.Equal(t, domain.PresenceOffline, c.Status)
	assert.True(t, c.IsFriend)

	c, _ = h.store.Contact(2)
	assert.Equal(t, asRequester, c.FriendshipID)

	_, ok = h.store.Contact(42)
	assert.False(t, ok)
}

func TestFetchBlockedUsersPartitionsRecords(t *testing.T) {
	backend := newFakeBackend()
	backend.blocks = []domain.BlockRecord{
		{ID: 1, BlockerID: 1, BlockedID: 2},
		{ID: 2, BlockerID: 3, BlockedID: 1},
		{ID: 3, BlockerID: 2, BlockedID: 3},
	}

	h := newHarness(t, backend, 1)
	snap := h.store.Snapshot()
	assert.Equal(t, []int64{2}, snap.BlockedUserIDs)
	assert.Equal(t, []int64{3}, snap.BlockedByUserIDs)
	require.Len(t, snap.BlockedUsers, 1)
	assert.Equal(t, int64(1), snap.BlockedUsers[0].ID)
	assert.True(t, h.store.IsBlocked(2))
	assert.True(t, h.store.IsBlockedBy(3))
	assert.False(t, h.store.IsBlocked(3))
}

func TestBlockThenRemoteUnblockKeepsOwnBlock(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend, 1)
	ctx := context.Background()

	require.NoError(t, h.store.BlockUser(ctx, 2))
	h.settle()
	assert.True(t, h.store.IsBlocked(2))
	assert.Equal(t, []string{"success: Đã chặn người dùng"}, h.notes.Texts())
	require.Len(t, h.store.Snapshot().BlockedUsers, 1, "block records re-fetched after success")

	h.chat.Emit(events.EventUserBlocked, events.UserBlocked{UserID: 2, IsBlocked: true})
	h.settle()
	assert.True(t, h.store.IsBlockedBy(2))

	h.chat.Emit(events.EventUserUnblocked, events.UserUnblocked{UserID: 2})
	h.settle()
	snap := h.store.Snapshot()
	assert.Empty(t, snap.BlockedByUserIDs)
	assert.Equal(t, []int64{2}, snap.BlockedUserIDs)
}

func TestSelfInitiatedBlockEvents(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend, 1)
	calls := backend.friendsCalls()

	backend.blocks = append(backend.blocks, domain.BlockRecord{ID: 5, BlockerID: 1, BlockedID: 3})
	h.chat.EmitRaw(events.EventUserBlocked, `{"data":{"userId":3,"isBlocked":true,"initiatedByMe":true}}`)
	assert.True(t, h.store.IsBlocked(3))
	assert.False(t, h.store.IsBlockedBy(3))
	h.settle()
	assert.Len(t, h.store.Snapshot().BlockedUsers, 1)
	assert.Greater(t, backend.friendsCalls(), calls)

	h.chat.Emit(events.EventUserUnblocked, events.UserUnblocked{UserID: 3, InitiatedByMe: true})
	snap := h.store.Snapshot()
	assert.Empty(t, snap.BlockedUserIDs)
	assert.Empty(t, snap.BlockedUsers)
}

func TestBlockFailureKeepsOptimisticFlag(t *testing.T) {
	backend := newFakeBackend()
	backend.blockErr = errBackend
	h := newHarness(t, backend, 1)

	assert.ErrorIs(t, h.store.BlockUser(context.Background(), 2), errBackend)
	assert.True(t, h.store.IsBlocked(2))
	assert.Equal(t, []string{"error: Không thể chặn người dùng"}, h.notes.Texts())
}

func TestUnblockRemovesRecordBeforeBackend(t *testing.T) {
	backend := newFakeBackend()
	backend.blocks = []domain.BlockRecord{{ID: 1, BlockerID: 1, BlockedID: 2}}
	h := newHarness(t, backend, 1)

	var seen []Snapshot
	unsubscribe := h.store.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	require.NoError(t, h.store.UnblockUser(context.Background(), 2))
	unsubscribe()

	require.Len(t, seen, 1)
	assert.Empty(t, seen[0].BlockedUserIDs)
	assert.Empty(t, seen[0].BlockedUsers)
	assert.Equal(t, []string{"success: Đã bỏ chặn người dùng"}, h.notes.Texts())

	backend.blockErr = errBackend
	assert.ErrorIs(t, h.store.UnblockUser(context.Background(), 3), errBackend)
	assert.Equal(t, "error: Không thể bỏ chặn người dùng", h.notes.Texts()[1])
}

func TestBlockRejectsSelf(t *testing.T) {
	h := newHarness(t, newFakeBackend(), 1)
	assert.ErrorIs(t, h.store.BlockUser(context.Background(), 1), social_errors.ErrInvalidInput)
	assert.Empty(t, h.store.Snapshot().BlockedUserIDs)
}

func TestFriendRequestLifecycleAcrossBothParties(t *testing.T) {
	backend := newFakeBackend()
	a := newHarness(t, backend, 1)
	b := newHarness(t, backend, 2)
	ctx := context.Background()

	req, err := a.store.SendFriendRequest(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, []int64{req.ID}, requestIDs(a.store.Snapshot()))
	assert.Empty(t, a.store.ReceivedFriendRequests())
	assert.Equal(t, []string{"success: Đã gửi lời mời kết bạn"}, a.notes.Texts())

	b.friends.Emit(events.EventFriendRequestReceived, events.FriendRequestReceived{Friend: *req, AddresseeID: 2})
	b.friends.Emit(events.EventFriendRequestReceived, events.FriendRequestReceived{Friend: *req, AddresseeID: 2})
	assert.Equal(t, []int64{req.ID}, requestIDs(b.store.Snapshot()), "replayed request is not duplicated")
	require.Len(t, b.store.ReceivedFriendRequests(), 1)
	assert.Equal(t, []string{"info: Bạn có lời mời kết bạn mới từ An"}, b.notes.Texts())

	accepted := backend.accept(req.ID)
	for _, h := range []*harness{a, b} {
		h.friends.Emit(events.EventFriendRequestAccepted, events.FriendRequestAccepted{
			Friend: accepted, RequesterID: 1, AddresseeID: 2,
		})
		h.settle()
	}

	assert.Empty(t, a.store.Snapshot().FriendRequests)
	assert.Empty(t, b.store.Snapshot().FriendRequests)
	assert.Equal(t, []int64{2}, contactIDs(a.store.Snapshot()))
	assert.Equal(t, []int64{1}, contactIDs(b.store.Snapshot()))
	assert.Contains(t, a.notes.Texts(), "success: Bình đã chấp nhận lời mời kết bạn của bạn")
	assert.Len(t, b.notes.Texts(), 1, "only the requester is told about acceptance")
}

func TestRequestRejected(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend, 1)
	req, err := h.store.SendFriendRequest(context.Background(), 3)
	require.NoError(t, err)

	h.friends.Emit(events.EventFriendRequestRejected, events.FriendRequestRejected{FriendID: req.ID, RequesterID: 1, AddresseeID: 3})
	assert.Empty(t, h.store.Snapshot().FriendRequests)
}

func TestFriendRemovedDropsContactAndNotifiesRemovedParty(t *testing.T) {
	backend := newFakeBackend()
	friendship := backend.addFriendship(1, 2)
	backend.addFriendship(1, 3)
	h := newHarness(t, backend, 1)
	require.Equal(t, []int64{2, 3}, contactIDs(h.store.Snapshot()))

	backend.listErr = errBackend
	h.friends.Emit(events.EventFriendRemoved, events.FriendRemoved{FriendID: friendship, UserID: 2, RemovedUserID: 1})
	h.settle()

	assert.Equal(t, []int64{3}, contactIDs(h.store.Snapshot()), "dropped locally even if the re-fetch fails")
	assert.Equal(t, []string{"info: Bạn đã bị hủy kết bạn"}, h.notes.Texts())
}

func TestSendFriendRequestFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = &api.StatusError{Code: 400, Message: "Đã là bạn bè"}
	h := newHarness(t, backend, 1)

	_, err := h.store.SendFriendRequest(context.Background(), 2)
	assert.ErrorIs(t, err, social_errors.ErrInvalidInput)
	assert.Equal(t, []string{"error: Đã là bạn bè"}, h.notes.Texts())

	_, err = h.store.SendFriendRequest(context.Background(), 1)
	assert.ErrorIs(t, err, social_errors.ErrInvalidInput)
}

func TestNoIdentityIsNoOp(t *testing.T) {
	backend := newFakeBackend()
	backend.addFriendship(1, 2)
	h := newHarness(t, backend, 0)

	assert.Empty(t, h.store.Snapshot().Contacts)
	assert.Zero(t, backend.friendsCalls())
	assert.NoError(t, h.store.BlockUser(context.Background(), 2))
	assert.Empty(t, h.store.ReceivedFriendRequests())
}

func TestContactsCache(t *testing.T) {
	backend := newFakeBackend()
	backend.listErr = errBackend
	cache := &fakeContactCache{contacts: map[int64][]domain.Contact{1: {{ID: 9, Name: "cached"}}}}
	h := newHarness(t, backend, 1, func(d *Deps) { d.Cache = cache })

	assert.Equal(t, []int64{9}, contactIDs(h.store.Snapshot()))

	backend.mu.Lock()
	backend.listErr = nil
	backend.mu.Unlock()
	backend.addFriendship(1, 2)
	require.NoError(t, h.store.FetchContacts(context.Background()))
	assert.Equal(t, []int64{2}, contactIDs(h.store.Snapshot()))

	cached, err := cache.GetContacts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Bình", cached[0].Name)
}

func TestStopEvictsAndUnsubscribes(t *testing.T) {
	backend := newFakeBackend()
	backend.addFriendship(1, 2)
	h := newHarness(t, backend, 1)
	h.store.Stop()

	assert.Empty(t, h.store.Snapshot().Contacts)
	h.chat.Emit(events.EventUserBlocked, events.UserBlocked{UserID: 2})
	assert.False(t, h.store.IsBlockedBy(2))
}

func TestUserSwitchEvictsPreviousUsersState(t *testing.T) {
	backend := newFakeBackend()
	backend.addFriendship(1, 3)
	backend.blocks = []domain.BlockRecord{{ID: 1, BlockerID: 1, BlockedID: 2}}
	cache := &fakeContactCache{}

	var current atomic.Int64
	current.Store(1)
	h := newHarness(t, backend, 1, func(d *Deps) {
		d.Identity = identity.ResolverFunc(func() (int64, bool) {
			id := current.Load()
			return id, id > 0
		})
		d.Cache = cache
	})
	require.Equal(t, []int64{3}, contactIDs(h.store.Snapshot()))
	require.True(t, h.store.IsBlocked(2))

	current.Store(2)
	snap := h.store.Snapshot()
	assert.Empty(t, snap.Contacts)
	assert.Empty(t, snap.BlockedUserIDs)
	h.settle()

	snap = h.store.Snapshot()
	assert.Empty(t, snap.Contacts, "user 2 has no friends")
	assert.Empty(t, snap.BlockedUserIDs)
	assert.Equal(t, []int64{1}, snap.BlockedByUserIDs)
	assert.False(t, h.store.IsBlocked(2))

	current.Store(0)
	snap = h.store.Snapshot()
	assert.Empty(t, snap.BlockedByUserIDs)
	assert.Empty(t, snap.BlockedUsers)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, []int64{1, 2}, cache.invalidated)
}

func TestLoginAfterStartLoadsContacts(t *testing.T) {
	backend := newFakeBackend()
	backend.addFriendship(1, 3)

	var current atomic.Int64
	h := newHarness(t, backend, 0, func(d *Deps) {
		d.Identity = identity.ResolverFunc(func() (int64, bool) {
			id := current.Load()
			return id, id > 0
		})
	})
	require.Empty(t, h.store.Snapshot().Contacts)

	current.Store(1)
	h.store.Snapshot()
	h.settle()

	assert.Equal(t, []int64{3}, contactIDs(h.store.Snapshot()))
}
