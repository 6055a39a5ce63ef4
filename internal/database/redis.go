package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/speedx/push-server/internal/config"
)

// RedisClient wraps redis.Client for caching operations
type RedisClient struct {
	*redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

// CachePreferences caches a user's notification preferences for an hour
func (r *RedisClient) CachePreferences(ctx context.Context, userID string, prefs interface{}) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	key := fmt.Sprintf("notification_preferences:%s", userID)
	return r.Set(ctx, key, data, time.Hour).Err()
}

// GetPreferences retrieves cached notification preferences into dest.
// Returns redis.Nil wrapped error on a cache miss.
func (r *RedisClient) GetPreferences(ctx context.Context, userID string, dest interface{}) error {
	key := fmt.Sprintf("notification_preferences:%s", userID)
	data, err := r.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// InvalidatePreferences drops the cached preferences for a user
func (r *RedisClient) InvalidatePreferences(ctx context.Context, userID string) error {
	key := fmt.Sprintf("notification_preferences:%s", userID)
	return r.Del(ctx, key).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}
