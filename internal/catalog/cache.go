package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"osp-stores-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	itemKeyPrefix   = "catalog:item:"
	defaultCacheTTL = 5 * time.Minute
)

// ItemCache is a read-through cache in front of the items table.
type ItemCache interface {
	GetItem(ctx context.Context, id uint) (*models.Item, bool, error)
	SetItem(ctx context.Context, item *models.Item) error
	InvalidateItem(ctx context.Context, id uint) error
}

type redisItemCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopItemCache struct{}

// NewItemCache connects to redisURL. An empty URL disables caching.
func NewItemCache(redisURL string, ttl time.Duration) (ItemCache, error) {
	if redisURL == "" {
		return noopItemCache{}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisItemCache{client: client, ttl: ttl}, nil
}

func NewNoopItemCache() ItemCache {
	return noopItemCache{}
}

func itemKey(id uint) string {
	return fmt.Sprintf("%s%d", itemKeyPrefix, id)
}

func (c *redisItemCache) GetItem(ctx context.Context, id uint) (*models.Item, bool, error) {
	payload, err := c.client.Get(ctx, itemKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var item models.Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, false, fmt.Errorf("decode cached item: %w", err)
	}
	return &item, true, nil
}

func (c *redisItemCache) SetItem(ctx context.Context, item *models.Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	if err := c.client.Set(ctx, itemKey(item.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisItemCache) InvalidateItem(ctx context.Context, id uint) error {
	if err := c.client.Del(ctx, itemKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (noopItemCache) GetItem(context.Context, uint) (*models.Item, bool, error) { return nil, false, nil }
func (noopItemCache) SetItem(context.Context, *models.Item) error { return nil }
func (noopItemCache) InvalidateItem(context.Context, uint) error { return nil }
