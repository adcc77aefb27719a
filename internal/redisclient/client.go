package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is a thin wrapper over Redis used as the fast-path duplicate
// check for webhook events. It is an optimization only: the durable ledger
// and the idempotent store transitions keep the pipeline correct when
// Redis is down.
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

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// IsEventSeen reports whether a webhook event id has been remembered
func (c *Client) IsEventSeen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RememberEvent records a processed webhook event id with a TTL
func (c *Client) RememberEvent(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, eventKey(eventID), "1", ttl).Err()
}

func eventKey(eventID string) string {
	return fmt.Sprintf("webhookevent:%s", eventID)
}
