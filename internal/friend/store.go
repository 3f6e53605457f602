// Package friend keeps the acting user's contacts, pending friend requests
// and block relationships in sync with the backend and the push channels.
package friend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"edusocial/internal/api"
	"edusocial/internal/domain"
	"edusocial/internal/identity"
	"edusocial/internal/metrics"
	"edusocial/internal/notify"
	"edusocial/internal/socket"
	social_errors "edusocial/pkg/errors"
	"edusocial/pkg/logger"
)

// ContactCache persists the contact list between runs.
type ContactCache interface {
	GetContacts(ctx context.Context, userID int64) ([]domain.Contact, error)
	SetContacts(ctx context.Context, userID int64, contacts []domain.Contact) error
	Invalidate(ctx context.Context, userID int64) error
}

type Config struct {
	RequestLimit int
}

func DefaultConfig() Config {
	return Config{RequestLimit: 50}
}

// Deps wires the store. Friend request events arrive on the friend
// namespace, block events on the chat namespace.
type Deps struct {
	API      api.FriendAPI
	Friends  socket.Transport
	Chat     socket.Transport
	Identity identity.Resolver
	Notifier notify.Notifier
	Cache    ContactCache
	Logger   *logger.Logger
}

type Snapshot struct {
	Version          uint64                 `json:"version"`
	Contacts         []domain.Contact       `json:"contacts"`
	FriendRequests   []domain.FriendRequest `json:"friend_requests"`
	BlockedUserIDs   []int64                `json:"blocked_user_ids"`
	BlockedByUserIDs []int64                `json:"blocked_by_user_ids"`
	BlockedUsers     []domain.BlockRecord   `json:"blocked_users"`
	LoadingContacts  bool                   `json:"loading_contacts"`
}

type Store struct {
	api      api.FriendAPI
	friends  socket.Transport
	chat     socket.Transport
	identity identity.Resolver
	notifier notify.Notifier
	cache    ContactCache
	log      *logger.Logger
	cfg      Config

	mu sync.Mutex

	// owner is the user the state below belongs to; zero when nobody.
	owner int64

	version         uint64
	contacts        []domain.Contact
	requests        []domain.FriendRequest
	blocked         map[int64]struct{}
	blockedBy       map[int64]struct{}
	blockRecords    []domain.BlockRecord
	loadingContacts bool
	contactSeq      fetchSeq
	requestSeq      fetchSeq
	blockSeq        fetchSeq
	started         bool
	stopped         bool
	unsubscribe     []socket.Unsubscribe

	pubMu     sync.Mutex
	published uint64
	subs      map[uint64]func(Snapshot)
	nextSub   uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

func NewStore(deps Deps, cfg Config) *Store {
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = DefaultConfig().RequestLimit
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Store{
		api:       deps.API,
		friends:   deps.Friends,
		chat:      deps.Chat,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		cache:     deps.Cache,
		log:       log.Named("friend"),
		cfg:       cfg,
		blocked:   make(map[int64]struct{}),
		blockedBy: make(map[int64]struct{}),
		subs:      make(map[uint64]func(Snapshot)),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}
}

// Start subscribes to push events and loads contacts, requests and blocks.
// Load errors are logged only.
func (s *Store) Start(ctx context.Context) {
	s.self()
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	if s.friends != nil {
		s.unsubscribe = append(s.unsubscribe,
			socket.OnFriendRequestReceived(s.friends, s.handleRequestReceived),
			socket.OnFriendRequestAccepted(s.friends, s.handleRequestAccepted),
			socket.OnFriendRequestRejected(s.friends, s.handleRequestRejected),
			socket.OnFriendRemoved(s.friends, s.handleFriendRemoved),
			socket.OnFriendError(s.friends, s.handleFriendError),
		)
	}
	if s.chat != nil {
		s.unsubscribe = append(s.unsubscribe,
			socket.OnUserBlocked(s.chat, s.handleUserBlocked),
			socket.OnUserUnblocked(s.chat, s.handleUserUnblocked),
		)
	}
	s.mu.Unlock()

	s.warmStart(ctx)
	if err := s.FetchContacts(ctx); err != nil {
		s.log.Warn("initial contacts fetch failed", zap.Error(err))
	}
	if err := s.FetchFriendRequests(ctx); err != nil {
		s.log.Warn("initial friend requests fetch failed", zap.Error(err))
	}
	if err := s.FetchBlockedUsers(ctx); err != nil {
		s.log.Warn("initial blocked users fetch failed", zap.Error(err))
	}
}

// Stop releases subscriptions, waits for background refreshes and evicts
// all state.
func (s *Store) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	s.bgCancel()
	s.bg.Wait()

	s.mu.Lock()
	s.evictLocked()
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// evictLocked drops all user state. Fetches still in flight are
// invalidated.
func (s *Store) evictLocked() {
	s.contacts = nil
	s.requests = nil
	s.blocked = make(map[int64]struct{})
	s.blockedBy = make(map[int64]struct{})
	s.blockRecords = nil
	s.loadingContacts = false
	s.contactSeq.reset()
	s.requestSeq.reset()
	s.blockSeq.reset()
}

func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.pubMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.pubMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.pubMu.Lock()
			delete(s.subs, id)
			s.pubMu.Unlock()
		})
	}
}

// Snapshot returns the current state, evicting a previous user's state
// first when the acting user changed.
func (s *Store) Snapshot() Snapshot {
	s.self()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:          s.version,
		Contacts:         slices.Clone(s.contacts),
		FriendRequests:   slices.Clone(s.requests),
		BlockedUserIDs:   sortedIDs(s.blocked),
		BlockedByUserIDs: sortedIDs(s.blockedBy),
		BlockedUsers:     slices.Clone(s.blockRecords),
		LoadingContacts:  s.loadingContacts,
	}
}

func (s *Store) commitLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) publish(snap Snapshot) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if snap.Version <= s.published {
		return
	}
	s.published = snap.Version
	for _, fn := range s.subs {
		fn(snap)
	}
}

// self resolves the acting user. A change of user evicts the previous
// user's state and cached contacts. A user that appears after Start is
// loaded in the background.
func (s *Store) self() (int64, bool) {
	var id int64
	ok := false
	if s.identity != nil {
		id, ok = s.identity.UserID()
	}
	if !ok {
		id = 0
	}

	s.mu.Lock()
	if id == s.owner || s.stopped {
		s.mu.Unlock()
		return id, ok
	}
	prev := s.owner
	s.owner = id
	started := s.started
	var snap Snapshot
	if prev != 0 {
		s.evictLocked()
		snap = s.commitLocked()
	}
	s.mu.Unlock()

	if prev != 0 {
		s.publish(snap)
		s.log.Info("acting user changed; state evicted", zap.Int64("previous_user_id", prev), zap.Int64("user_id", id))
		if s.cache != nil {
			if err := s.cache.Invalidate(context.Background(), prev); err != nil {
				s.log.Warn("failed to invalidate cached contacts", zap.Int64("user_id", prev), zap.Error(err))
			}
		}
	}
	if ok && started {
		s.inBackground("contacts", s.FetchContacts)
		s.inBackground("friend_requests", s.FetchFriendRequests)
		s.inBackground("blocks", s.FetchBlockedUsers)
	}
	return id, ok
}

// ReceivedFriendRequests returns the pending requests addressed to the
// acting user.
func (s *Store) ReceivedFriendRequests() []domain.FriendRequest {
	self, ok := s.self()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FriendRequest
	for _, r := range s.requests {
		if r.AddresseeID == self {
			out = append(out, r)
		}
	}
	return out
}

// Contact looks up a friend by user id.
func (s *Store) Contact(id int64) (domain.Contact, bool) {
	s.self()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Contact{}, false
}

// IsBlocked reports whether the acting user blocked id.
func (s *Store) IsBlocked(id int64) bool {
	s.self()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[id]
	return ok
}

// IsBlockedBy reports whether id blocked the acting user.
func (s *Store) IsBlockedBy(id int64) bool {
	s.self()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blockedBy[id]
	return ok
}

func (s *Store) FetchContacts(ctx context.Context) error {
	self, ok := s.self()
	if !ok {
		return nil
	}

	s.mu.Lock()
	seq := s.contactSeq.issue()
	s.loadingContacts = true
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	rows, err := s.api.ListFriends(ctx, self)

	s.mu.Lock()
	if !s.contactSeq.current(seq) {
		metrics.StaleFetches.WithLabelValues("contacts").Inc()
		s.mu.Unlock()
		return nil
	}
	if s.contactSeq.last(seq) {
		s.loadingContacts = false
	}
	if err != nil {
		snap = s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)
		return fmt.Errorf("fetch contacts: %w", err)
	}
	s.contactSeq.apply(seq)

	contacts := make([]domain.Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, domain.ContactFromFriendship(row, self))
	}
	s.contacts = contacts
	snap = s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	if s.cache != nil {
		if err := s.cache.SetContacts(context.WithoutCancel(ctx), self, contacts); err != nil {
			s.log.Warn("failed to cache contacts", zap.Error(err))
		}
	}
	return nil
}

func (s *Store) FetchFriendRequests(ctx context.Context) error {
	self, ok := s.self()
	if !ok {
		return nil
	}

	s.mu.Lock()
	seq := s.requestSeq.issue()
	s.mu.Unlock()

	requests, err := s.api.ListFriendRequests(ctx, self, s.cfg.RequestLimit)

	s.mu.Lock()
	if !s.requestSeq.current(seq) {
		metrics.StaleFetches.WithLabelValues("friend_requests").Inc()
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("fetch friend requests: %w", err)
	}
	s.requestSeq.apply(seq)
	s.requests = requests
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// FetchBlockedUsers splits the block records into the users the acting user
// blocked and the users who blocked them. Only the former are kept as
// records.
func (s *Store) FetchBlockedUsers(ctx context.Context) error {
	self, ok := s.self()
	if !ok {
		return nil
	}

	s.mu.Lock()
	seq := s.blockSeq.issue()
	s.mu.Unlock()

	records, err := s.api.ListBlocks(ctx, self)

	s.mu.Lock()
	if !s.blockSeq.current(seq) {
		metrics.StaleFetches.WithLabelValues("blocks").Inc()
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("fetch blocked users: %w", err)
	}
	s.blockSeq.apply(seq)

	blocked := make(map[int64]struct{})
	blockedBy := make(map[int64]struct{})
	var mine []domain.BlockRecord
	for _, r := range records {
		switch self {
		case r.BlockerID:
			blocked[r.BlockedID] = struct{}{}
			mine = append(mine, r)
		case r.BlockedID:
			blockedBy[r.BlockerID] = struct{}{}
		}
	}
	s.blocked = blocked
	s.blockedBy = blockedBy
	s.blockRecords = mine
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// SendFriendRequest asks addresseeID to become a friend and prepends the
// created request.
func (s *Store) SendFriendRequest(ctx context.Context, addresseeID int64) (*domain.FriendRequest, error) {
	self, ok := s.self()
	if !ok {
		return nil, nil
	}
	if addresseeID <= 0 || addresseeID == self {
		return nil, fmt.Errorf("friend request to %d: %w", addresseeID, social_errors.ErrInvalidInput)
	}

	req, err := s.api.SendFriendRequest(ctx, self, addresseeID)
	if err != nil {
		s.log.Warn("send friend request failed", zap.Int64("addressee_id", addresseeID), zap.Error(err))
		notify.Error(ctx, s.notifier, failureText(err, "Không thể gửi lời mời kết bạn"))
		return nil, err
	}

	if req != nil {
		s.mu.Lock()
		if s.owner == self && s.prependRequestLocked(*req) {
			snap := s.commitLocked()
			s.mu.Unlock()
			s.publish(snap)
		} else {
			s.mu.Unlock()
		}
	}
	notify.Success(ctx, s.notifier, "Đã gửi lời mời kết bạn")
	return req, nil
}

// BlockUser adds id to the blocked set before calling the backend. A failed
// call is reported but the set is left as is; retrying is idempotent.
func (s *Store) BlockUser(ctx context.Context, id int64) error {
	self, ok := s.self()
	if !ok {
		return nil
	}
	if id <= 0 || id == self {
		return fmt.Errorf("block %d: %w", id, social_errors.ErrInvalidInput)
	}

	s.mu.Lock()
	s.blocked[id] = struct{}{}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	if err := s.api.BlockUser(ctx, self, id); err != nil {
		s.log.Warn("block user failed", zap.Int64("user_id", id), zap.Error(err))
		notify.Error(ctx, s.notifier, "Không thể chặn người dùng")
		return err
	}
	notify.Success(ctx, s.notifier, "Đã chặn người dùng")
	s.inBackground("blocks", s.FetchBlockedUsers)
	return nil
}

// UnblockUser removes id from the blocked set and its record before calling
// the backend.
func (s *Store) UnblockUser(ctx context.Context, id int64) error {
	self, ok := s.self()
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.removeBlockedLocked(id)
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	if err := s.api.UnblockUser(ctx, self, id); err != nil {
		s.log.Warn("unblock user failed", zap.Int64("user_id", id), zap.Error(err))
		notify.Error(ctx, s.notifier, "Không thể bỏ chặn người dùng")
		return err
	}
	notify.Success(ctx, s.notifier, "Đã bỏ chặn người dùng")
	return nil
}

func (s *Store) removeBlockedLocked(id int64) {
	delete(s.blocked, id)
	s.blockRecords = slices.DeleteFunc(s.blockRecords, func(r domain.BlockRecord) bool {
		return r.BlockedID == id
	})
}

// prependRequestLocked adds r unless a request with the same id is listed.
func (s *Store) prependRequestLocked(r domain.FriendRequest) bool {
	for _, existing := range s.requests {
		if existing.ID == r.ID {
			return false
		}
	}
	s.requests = append([]domain.FriendRequest{r}, s.requests...)
	return true
}

func (s *Store) removeRequestLocked(id int64) bool {
	n := len(s.requests)
	s.requests = slices.DeleteFunc(s.requests, func(r domain.FriendRequest) bool { return r.ID == id })
	return len(s.requests) != n
}

func (s *Store) inBackground(what string, fetch func(context.Context) error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		if err := fetch(s.bgCtx); err != nil && s.bgCtx.Err() == nil {
			s.log.Warn("background refresh failed", zap.String("resource", what), zap.Error(err))
		}
	}()
}

func (s *Store) warmStart(ctx context.Context) {
	if s.cache == nil {
		return
	}
	self, ok := s.self()
	if !ok {
		return
	}
	contacts, err := s.cache.GetContacts(ctx, self)
	if err != nil {
		s.log.Warn("failed to read cached contacts", zap.Error(err))
		return
	}
	if len(contacts) == 0 {
		return
	}

	s.mu.Lock()
	if len(s.contacts) > 0 || s.contactSeq.applied > 0 {
		s.mu.Unlock()
		return
	}
	s.contacts = contacts
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func failureText(err error, fallback string) string {
	var se *api.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// fetchSeq orders overlapping fetches of one resource: a response older
// than the last applied one is dropped.
type fetchSeq struct {
	issued  uint64
	applied uint64
}

func (f *fetchSeq) issue() uint64 {
	f.issued++
	return f.issued
}

func (f *fetchSeq) current(seq uint64) bool { return seq >= f.applied }

func (f *fetchSeq) last(seq uint64) bool { return seq == f.issued }

func (f *fetchSeq) apply(seq uint64) { f.applied = seq }

// reset makes every outstanding response stale.
func (f *fetchSeq) reset() {
	f.issued++
	f.applied = f.issued
}
