package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "livechat:prefs:"

// Redis reads preferences from one hash per user at prefix+userID.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) GetUserPreference(ctx context.Context, userID, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.prefix+userID, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read preference %s for %s: %w", key, userID, err)
	}
	return v, true, nil
}

// Set stores a preference. Used by tooling and tests.
func (r *Redis) Set(ctx context.Context, userID, key, value string) error {
	return r.client.HSet(ctx, r.prefix+userID, key, value).Err()
}
