package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"edusocial/internal/domain"
)

// Cache key patterns:
// - user:{user_id}:conversations - conversation list snapshot
// - user:{user_id}:contacts - accepted friends

type CacheConfig struct {
	ConversationTTL time.Duration
	ContactTTL      time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ConversationTTL: 24 * time.Hour,
		ContactTTL:      24 * time.Hour,
	}
}

// CacheStore keeps the last known lists per user so a restarted agent can
// render something before the first fetch completes.
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{client: client, config: config}
}

func conversationsKey(userID int64) string {
	return fmt.Sprintf("user:%d:conversations", userID)
}

func contactsKey(userID int64) string {
	return fmt.Sprintf("user:%d:contacts", userID)
}

// GetConversationList returns nil, nil on a cache miss.
func (c *CacheStore) GetConversationList(ctx context.Context, userID int64) (*domain.ConversationList, error) {
	var list domain.ConversationList
	ok, err := c.getJSON(ctx, conversationsKey(userID), &list)
	if err != nil || !ok {
		return nil, err
	}
	return &list, nil
}

func (c *CacheStore) SetConversationList(ctx context.Context, userID int64, list *domain.ConversationList) error {
	return c.setJSON(ctx, conversationsKey(userID), list, c.config.ConversationTTL)
}

// GetContacts returns nil, nil on a cache miss.
func (c *CacheStore) GetContacts(ctx context.Context, userID int64) ([]domain.Contact, error) {
	var contacts []domain.Contact
	ok, err := c.getJSON(ctx, contactsKey(userID), &contacts)
	if err != nil || !ok {
		return nil, err
	}
	return contacts, nil
}

func (c *CacheStore) SetContacts(ctx context.Context, userID int64, contacts []domain.Contact) error {
	return c.setJSON(ctx, contactsKey(userID), contacts, c.config.ContactTTL)
}

// Invalidate drops everything cached for userID.
func (c *CacheStore) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, conversationsKey(userID), contactsKey(userID)).Err()
}

func (c *CacheStore) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return true, nil
}

func (c *CacheStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
