package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commerce-backend/internal/models"

	"github.com/go-redis/redis/v8"
)

const rankingKey = "ranking:current"

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PublishSnapshot replaces the published leaderboard with one SET of the
// whole list. Readers either see the previous snapshot or the new one in
// full, never a mix.
func (c *Client) PublishSnapshot(ctx context.Context, ranked []models.RankedProduct) error {
	payload, err := json.Marshal(ranked)
	if err != nil {
		return fmt.Errorf("failed to marshal ranking snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, rankingKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to publish ranking snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the last published leaderboard, empty when no
// materialization has run yet.
func (c *Client) GetSnapshot(ctx context.Context) ([]models.RankedProduct, error) {
	payload, err := c.rdb.Get(ctx, rankingKey).Bytes()
	if err == redis.Nil {
		return []models.RankedProduct{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking snapshot: %w", err)
	}

	var ranked []models.RankedProduct
	if err := json.Unmarshal(payload, &ranked); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranking snapshot: %w", err)
	}
	return ranked, nil
}

// AcquireLock takes a best-effort distributed lock, used to keep concurrent
// batch runs from materializing at the same time.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
