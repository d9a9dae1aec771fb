package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-reservations/internal/logger"
)

// LedgerCount resolves the authoritative available count from the
// ledger when the cached counter is missing.
type LedgerCount func(ctx context.Context, eventID, ticketType string) (int, error)

// Counters keeps the available/reserved/sold counts per
// (event, ticket type) in Redis. They are a performance cache; the
// ledger stays authoritative at confirmation time.
type Counters struct {
	Client      *redis.Client
	Log         *logger.Logger
	LedgerCount LedgerCount
	CacheTTL    time.Duration
}

func NewCounters(client *redis.Client, log *logger.Logger, ledgerCount LedgerCount, cacheTTL time.Duration) *Counters {
	return &Counters{
		Client:      client,
		Log:         log,
		LedgerCount: ledgerCount,
		CacheTTL:    cacheTTL,
	}
}

func availableKey(eventID, ticketType string) string {
	return fmt.Sprintf("inventory:available:%s:%s", eventID, ticketType)
}

func reservedKey(eventID, ticketType string) string {
	return fmt.Sprintf("inventory:reserved:%s:%s", eventID, ticketType)
}

func soldKey(eventID, ticketType string) string {
	return fmt.Sprintf("inventory:sold:%s:%s", eventID, ticketType)
}

// Available returns the cached available count, falling back to the
// ledger on a miss and caching the result with a TTL.
func (c *Counters) Available(ctx context.Context, eventID, ticketType string) (int, error) {
	key := availableKey(eventID, ticketType)
	val, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		count, lerr := c.LedgerCount(ctx, eventID, ticketType)
		if lerr != nil {
			return 0, fmt.Errorf("ledger count fallback for %s/%s: %w", eventID, ticketType, lerr)
		}
		if serr := c.Client.Set(ctx, key, count, c.CacheTTL).Err(); serr != nil && c.Log != nil {
			c.Log.Warn("INVENTORY", fmt.Sprintf("failed to cache available count for %s/%s: %v", eventID, ticketType, serr))
		}
		return count, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// Reserved returns the sum of quantities held by active reservations.
// A missing key means no active reservations.
func (c *Counters) Reserved(ctx context.Context, eventID, ticketType string) (int, error) {
	val, err := c.Client.Get(ctx, reservedKey(eventID, ticketType)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (c *Counters) Sold(ctx context.Context, eventID, ticketType string) (int, error) {
	val, err := c.Client.Get(ctx, soldKey(eventID, ticketType)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (c *Counters) AddReserved(ctx context.Context, eventID, ticketType string, delta int) error {
	return c.Client.IncrBy(ctx, reservedKey(eventID, ticketType), int64(delta)).Err()
}

func (c *Counters) AddSold(ctx context.Context, eventID, ticketType string, delta int) error {
	return c.Client.IncrBy(ctx, soldKey(eventID, ticketType), int64(delta)).Err()
}

// AddAvailable adjusts the cached available count. If the cache entry
// expired the adjustment is skipped; the next read refills from the
// ledger.
func (c *Counters) AddAvailable(ctx context.Context, eventID, ticketType string, delta int) error {
	key := availableKey(eventID, ticketType)
	exists, err := c.Client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}
	return c.Client.IncrBy(ctx, key, int64(delta)).Err()
}
