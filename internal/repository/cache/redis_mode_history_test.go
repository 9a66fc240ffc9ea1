package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"agent-memory-be/pkg/acb"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisModeHistory(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: redis unreachable: %v", err)
	}

	store := NewRedisModeHistory(client, time.Minute)
	key := "test:" + uuid.New().String()
	defer client.Del(ctx, keyPrefix+key)

	for _, m := range []acb.Mode{acb.ModeTask, acb.ModeDebugging, acb.ModeExploration, acb.ModeLearning} {
		require.NoError(t, store.AppendMode(ctx, key, m))
	}

	modes, err := store.LastModes(ctx, key, 3)
	require.NoError(t, err)
	assert.Equal(t, []acb.Mode{acb.ModeDebugging, acb.ModeExploration, acb.ModeLearning}, modes)

	length, err := client.LLen(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, length)
}
