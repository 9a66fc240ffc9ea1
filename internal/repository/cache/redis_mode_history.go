package cache

import (
	"context"
	"fmt"
	"time"

	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/mode"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "acb:modes:"

// RedisModeHistory keeps per-session mode windows in redis so every replica
// smooths against the same history. Each append is a single MULTI/EXEC, which
// makes concurrent turns for one session linearizable.
type RedisModeHistory struct {
	client *redis.Client
	ttl    time.Duration
	size   int
}

// NewRedisModeHistory creates a redis-backed store.
func NewRedisModeHistory(client *redis.Client, ttl time.Duration) *RedisModeHistory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisModeHistory{
		client: client,
		ttl:    ttl,
		size:   mode.WindowSize,
	}
}

// LastModes returns up to n most recent modes, oldest first.
func (r *RedisModeHistory) LastModes(ctx context.Context, key string, n int) ([]acb.Mode, error) {
	if n <= 0 {
		return []acb.Mode{}, nil
	}
	values, err := r.client.LRange(ctx, keyPrefix+key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read mode history: %w", err)
	}
	modes := make([]acb.Mode, 0, len(values))
	for _, v := range values {
		modes = append(modes, acb.ParseMode(v))
	}
	return modes, nil
}

// AppendMode pushes m and trims the list to the window size atomically.
func (r *RedisModeHistory) AppendMode(ctx context.Context, key string, m acb.Mode) error {
	k := keyPrefix + key
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, k, string(m))
	pipe.LTrim(ctx, k, int64(-r.size), -1)
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append mode history: %w", err)
	}
	return nil
}
