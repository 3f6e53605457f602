package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusocial/internal/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestConnectFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestConversationListRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewCacheStore(client, DefaultCacheConfig())
	ctx := context.Background()

	miss, err := store.GetConversationList(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, miss)

	list := &domain.ConversationList{
		Conversations:      []domain.Conversation{{ID: "3", Name: "Lan", MemberIDs: []int64{1, 2}, LastMessage: "hi"}},
		LastReadMessageIDs: map[string]int64{"3": 40},
		GroupCount:         0,
		SavedAt:            time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SetConversationList(ctx, 1, list))
	assert.True(t, mr.Exists("user:1:conversations"))
	assert.Equal(t, 24*time.Hour, mr.TTL("user:1:conversations"))

	got, err := store.GetConversationList(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, list, got)

	require.NoError(t, store.Invalidate(ctx, 1))
	got, err = store.GetConversationList(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCorruptEntryIsAnError(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewCacheStore(client, DefaultCacheConfig())
	require.NoError(t, mr.Set("user:2:contacts", "{not json"))

	_, err := store.GetContacts(context.Background(), 2)
	assert.Error(t, err)
}

func TestPublishSubscribe(t *testing.T) {
	_, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewSubscriber(client).Subscribe(ctx, []string{"channel:user:1:notifications"}, ready, func(channel string, payload []byte) {
			got <- channel + " " + string(payload)
		})
	}()
	<-ready

	require.NoError(t, NewPublisher(client).PublishJSON(ctx, "channel:user:1:notifications", map[string]string{"text": "hi"}))
	select {
	case msg := <-got:
		assert.Equal(t, `channel:user:1:notifications {"text":"hi"}`, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}
