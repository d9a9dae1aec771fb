package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservations/internal/logger"
)

func setupSchedulerRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestScheduleExpirySetsShadowKeyWithTTL(t *testing.T) {
	client, mr := setupSchedulerRedis(t)
	s := NewRedisExpiryScheduler(client, logger.NewTestLogger())
	ctx := context.Background()

	require.NoError(t, s.ScheduleExpiry(ctx, "res_abc", 10*time.Minute))

	assert.True(t, mr.Exists("reservation_ttl:res_abc"))
	assert.Equal(t, 10*time.Minute, mr.TTL("reservation_ttl:res_abc"))
}

func TestCancelScheduledRemovesShadowKey(t *testing.T) {
	client, mr := setupSchedulerRedis(t)
	s := NewRedisExpiryScheduler(client, logger.NewTestLogger())
	ctx := context.Background()

	require.NoError(t, s.ScheduleExpiry(ctx, "res_abc", 10*time.Minute))
	require.NoError(t, s.CancelScheduled(ctx, "res_abc"))

	assert.False(t, mr.Exists("reservation_ttl:res_abc"))

	// Cancelling an unknown token is harmless.
	assert.NoError(t, s.CancelScheduled(ctx, "res_missing"))
}

func TestShadowKeyExpires(t *testing.T) {
	client, mr := setupSchedulerRedis(t)
	s := NewRedisExpiryScheduler(client, logger.NewTestLogger())

	require.NoError(t, s.ScheduleExpiry(context.Background(), "res_abc", time.Minute))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("reservation_ttl:res_abc"))
}
