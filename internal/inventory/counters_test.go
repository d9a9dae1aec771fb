package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
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

func TestAvailableFallsBackToLedger(t *testing.T) {
	client, _ := setupTestRedis(t)
	calls := 0
	c := NewCounters(client, nil, func(ctx context.Context, eventID, ticketType string) (int, error) {
		calls++
		return 42, nil
	}, time.Minute)
	ctx := context.Background()

	available, err := c.Available(ctx, "event-1", "vip")
	require.NoError(t, err)
	assert.Equal(t, 42, available)
	assert.Equal(t, 1, calls)

	// Second read hits the cache, not the ledger.
	available, err = c.Available(ctx, "event-1", "vip")
	require.NoError(t, err)
	assert.Equal(t, 42, available)
	assert.Equal(t, 1, calls)
}

func TestAvailableLedgerError(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewCounters(client, nil, func(ctx context.Context, eventID, ticketType string) (int, error) {
		return 0, errors.New("ledger down")
	}, time.Minute)

	_, err := c.Available(context.Background(), "event-1", "vip")
	assert.Error(t, err)
}

func TestReservedDefaultsToZero(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewCounters(client, nil, nil, time.Minute)
	ctx := context.Background()

	reserved, err := c.Reserved(ctx, "event-1", "vip")
	require.NoError(t, err)
	assert.Equal(t, 0, reserved)
}

func TestReservedAccounting(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewCounters(client, nil, nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.AddReserved(ctx, "event-1", "vip", 3))
	require.NoError(t, c.AddReserved(ctx, "event-1", "vip", 2))
	require.NoError(t, c.AddReserved(ctx, "event-1", "vip", -3))

	reserved, err := c.Reserved(ctx, "event-1", "vip")
	require.NoError(t, err)
	assert.Equal(t, 2, reserved)
}

func TestAddAvailableSkipsExpiredCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewCounters(client, nil, func(ctx context.Context, eventID, ticketType string) (int, error) {
		return 10, nil
	}, time.Minute)
	ctx := context.Background()

	// Prime the cache, then let it expire.
	_, err := c.Available(ctx, "event-1", "vip")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	// Adjustment on a missing key is a no-op; the next read refills
	// from the ledger instead of inventing a count.
	require.NoError(t, c.AddAvailable(ctx, "event-1", "vip", -2))

	available, err := c.Available(ctx, "event-1", "vip")
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}

func TestAddAvailableAdjustsLiveCache(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewCounters(client, nil, func(ctx context.Context, eventID, ticketType string) (int, error) {
		return 10, nil
	}, time.Minute)
	ctx := context.Background()

	_, err := c.Available(ctx, "event-1", "vip")
	require.NoError(t, err)

	require.NoError(t, c.AddAvailable(ctx, "event-1", "vip", -4))

	available, err := c.Available(ctx, "event-1", "vip")
	require.NoError(t, err)
	assert.Equal(t, 6, available)
}

func TestSoldCounter(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewCounters(client, nil, nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.AddSold(ctx, "event-1", "vip", 2))

	sold, err := c.Sold(ctx, "event-1", "vip")
	require.NoError(t, err)
	assert.Equal(t, 2, sold)
}
