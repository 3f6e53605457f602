package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"edusocial/internal/api"
	"edusocial/internal/domain"
	"edusocial/internal/identity"
	"edusocial/internal/notify"
	"edusocial/internal/socket"
	"edusocial/pkg/logger"
)

// ContactLookup resolves display data for a friend without a network call.
type ContactLookup interface {
	Contact(id int64) (domain.Contact, bool)
}

// SnapshotCache persists the conversation list between runs.
type SnapshotCache interface {
	GetConversationList(ctx context.Context, userID int64) (*domain.ConversationList, error)
	SetConversationList(ctx context.Context, userID int64, list *domain.ConversationList) error
	Invalidate(ctx context.Context, userID int64) error
}

type Config struct {
	ConversationLimit int
	MessageLimit      int
	DedupCap          int
	DedupKeep         int
}

func DefaultConfig() Config {
	return Config{ConversationLimit: 100, MessageLimit: 50, DedupCap: 1000, DedupKeep: 500}
}

type Deps struct {
	API       api.ChatAPI
	Transport socket.Transport
	Identity  identity.Resolver
	Notifier  notify.Notifier
	Contacts  ContactLookup
	Cache     SnapshotCache
	Logger    *logger.Logger
}

// Snapshot is a consistent copy of the conversation list and the active
// conversation's messages.
type Snapshot struct {
	Version              uint64                `json:"version"`
	Conversations        []domain.Conversation `json:"conversations"`
	ActiveConversationID string                `json:"active_conversation_id,omitempty"`
	Messages             []domain.Message      `json:"messages"`
	LastReadMessageIDs   map[string]int64      `json:"last_read_message_ids"`
	GroupCount           int                   `json:"group_count"`
	LoadingConversations bool                  `json:"loading_conversations"`
	LoadingMessages      bool                  `json:"loading_messages"`
}

// Store owns the conversation list and the active conversation's messages.
// Both are mutated under one lock and published as one snapshot per change.
type Store struct {
	api       api.ChatAPI
	transport socket.Transport
	identity  identity.Resolver
	notifier  notify.Notifier
	contacts  ContactLookup
	cache     SnapshotCache
	log       *logger.Logger
	cfg       Config

	mu sync.Mutex

	// owner is the user the state below belongs to; zero when nobody.
	owner int64

	version              uint64
	conversations        []domain.Conversation
	active               string
	generation           uint64
	messages             []domain.Message
	lastRead             map[string]int64
	groupCount           int
	loadingConversations bool
	loadingMessages      bool
	recent               *recentSet
	outgoing             map[string]*outgoing
	promoted             map[string]string
	joined               int64
	listIssued           uint64
	listApplied          uint64
	started              bool
	stopped              bool
	unsubscribe          []socket.Unsubscribe

	// promoting collapses concurrent room creations for one placeholder.
	promoting singleflight.Group

	pubMu     sync.Mutex
	published uint64
	subs      map[uint64]func(Snapshot)
	nextSub   uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

func NewStore(deps Deps, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.ConversationLimit <= 0 {
		cfg.ConversationLimit = def.ConversationLimit
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = def.MessageLimit
	}
	if cfg.DedupCap <= 0 {
		cfg.DedupCap = def.DedupCap
	}
	if cfg.DedupKeep <= 0 {
		cfg.DedupKeep = def.DedupKeep
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Store{
		api:       deps.API,
		transport: deps.Transport,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		contacts:  deps.Contacts,
		cache:     deps.Cache,
		log:       log.Named("chat"),
		cfg:       cfg,
		lastRead:  make(map[string]int64),
		recent:    newRecentSet(cfg.DedupCap, cfg.DedupKeep),
		outgoing:  make(map[string]*outgoing),
		promoted:  make(map[string]string),
		subs:      make(map[uint64]func(Snapshot)),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}
}

// Start wires push handlers, seeds the list from the cache when one is
// configured and runs the first fetch. Fetch errors are logged only.
func (s *Store) Start(ctx context.Context) {
	s.self()
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.unsubscribe = append(s.unsubscribe,
		socket.OnMessageReceived(s.transport, s.handleMessageReceived),
		socket.OnMessageRead(s.transport, s.handleMessageRead),
		s.transport.OnConnectionChange(s.handleConnectionChange),
	)
	s.mu.Unlock()

	s.warmStart(ctx)
	if err := s.FetchConversations(ctx); err != nil {
		s.log.Warn("initial conversation fetch failed", zap.Error(err))
	}
}

// Stop releases subscriptions, leaves the joined room, waits for background
// refreshes and evicts all state.
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

// evictLocked drops every piece of user state and leaves the joined room.
// Fetches still in flight are invalidated.
func (s *Store) evictLocked() {
	if s.joined != 0 {
		if err := s.transport.LeaveRoom(s.joined); err != nil {
			s.log.Debug("leave room on evict failed", zap.Int64("room_id", s.joined), zap.Error(err))
		}
		s.joined = 0
	}
	s.conversations = nil
	s.messages = nil
	s.active = ""
	s.generation++
	s.listIssued++
	s.listApplied = s.listIssued
	s.loadingConversations = false
	s.loadingMessages = false
	s.lastRead = make(map[string]int64)
	s.groupCount = 0
	s.outgoing = make(map[string]*outgoing)
	s.promoted = make(map[string]string)
	s.recent = newRecentSet(s.cfg.DedupCap, s.cfg.DedupKeep)
}

// Subscribe registers fn for every committed change. fn runs synchronously
// and must not call back into the store.
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

// Snapshot returns the current state. A logout or user switch noticed here
// evicts the previous user's state first.
func (s *Store) Snapshot() Snapshot {
	s.self()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	convs := make([]domain.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		convs[i] = c.Clone()
	}
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	lastRead := make(map[string]int64, len(s.lastRead))
	for k, v := range s.lastRead {
		lastRead[k] = v
	}
	return Snapshot{
		Version:              s.version,
		Conversations:        convs,
		ActiveConversationID: s.active,
		Messages:             msgs,
		LastReadMessageIDs:   lastRead,
		GroupCount:           s.groupCount,
		LoadingConversations: s.loadingConversations,
		LoadingMessages:      s.loadingMessages,
	}
}

func (s *Store) commitLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

// publish delivers snap unless a newer one already went out.
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

// self resolves the acting user. When it is not the user the state belongs
// to, that state is evicted along with its cache entry. A user that appears
// after Start gets their list fetched in the background.
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
				s.log.Warn("failed to invalidate cached conversations", zap.Int64("user_id", prev), zap.Error(err))
			}
		}
	}
	if ok && started {
		s.refreshInBackground()
	}
	return id, ok
}

// setActiveLocked switches the active conversation. Any fetch started for
// the previous selection is invalidated by the generation bump.
func (s *Store) setActiveLocked(id string) {
	s.generation++
	s.active = id
	s.messages = nil
	s.loadingMessages = false
	s.syncRoomLocked(false)
}

// syncRoomLocked keeps exactly the active real room joined on the transport.
func (s *Store) syncRoomLocked(force bool) {
	want, _ := domain.ParseRoomID(s.active)
	if want == s.joined && !force {
		return
	}
	if s.joined != 0 && s.joined != want {
		if err := s.transport.LeaveRoom(s.joined); err != nil {
			s.log.Debug("leave room failed", zap.Int64("room_id", s.joined), zap.Error(err))
		}
	}
	s.joined = 0
	if want != 0 {
		if err := s.transport.JoinRoom(want); err != nil {
			s.log.Debug("join room failed", zap.Int64("room_id", want), zap.Error(err))
		}
		s.joined = want
	}
}

func (s *Store) indexOfConversationLocked(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfMessageLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// moveToFrontLocked puts the conversation at idx first, keeping the
// relative order of the rest.
func (s *Store) moveToFrontLocked(idx int) {
	if idx <= 0 {
		return
	}
	c := s.conversations[idx]
	copy(s.conversations[1:idx+1], s.conversations[:idx])
	s.conversations[0] = c
}

func (s *Store) refreshInBackground() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		if err := s.FetchConversations(s.bgCtx); err != nil && s.bgCtx.Err() == nil {
			s.log.Warn("background conversation refresh failed", zap.Error(err))
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
	list, err := s.cache.GetConversationList(ctx, self)
	if err != nil {
		s.log.Warn("failed to read cached conversations", zap.Error(err))
		return
	}
	if list == nil {
		return
	}

	s.mu.Lock()
	if len(s.conversations) > 0 || s.listApplied > 0 {
		s.mu.Unlock()
		return
	}
	s.conversations = list.Conversations
	s.groupCount = list.GroupCount
	for k, v := range list.LastReadMessageIDs {
		s.lastRead[k] = v
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)
	s.log.Debug("conversations restored from cache", zap.Int("count", len(list.Conversations)), zap.Time("saved_at", list.SavedAt))
}

func (s *Store) saveToCache(ctx context.Context, self int64, snap Snapshot) {
	if s.cache == nil {
		return
	}
	list := &domain.ConversationList{
		Conversations:      snap.Conversations,
		LastReadMessageIDs: snap.LastReadMessageIDs,
		GroupCount:         snap.GroupCount,
		SavedAt:            time.Now().UTC(),
	}
	if err := s.cache.SetConversationList(context.WithoutCancel(ctx), self, list); err != nil {
		s.log.Warn("failed to cache conversations", zap.Error(err))
	}
}
