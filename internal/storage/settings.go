package storage

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisSettings stores the sharing toggle as a boolean under a well-known
// per-user key. A missing key reads as disabled.
type RedisSettings struct {
	client *redis.Client
	prefix string
}

func NewRedisSettings(client *redis.Client) *RedisSettings {
	return &RedisSettings{client: client, prefix: "settings:sharing:"}
}

func (s *RedisSettings) SetSharingEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.client.Set(ctx, s.prefix+userID, strconv.FormatBool(enabled), 0).Err()
}

func (s *RedisSettings) SharingEnabled(ctx context.Context, userID string) (bool, error) {
	v, err := s.client.Get(ctx, s.prefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}
