package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-reservations/internal/logger"
)

const expiryKeyPrefix = "reservation_ttl:"

// RedisExpiryScheduler schedules deferred cancellations through Redis
// key expiry: each reserve writes a shadow key with the reservation's
// TTL, and the keyspace expiry notification triggers cancellation.
type RedisExpiryScheduler struct {
	Client *redis.Client
	Log    *logger.Logger
}

func NewRedisExpiryScheduler(client *redis.Client, log *logger.Logger) *RedisExpiryScheduler {
	return &RedisExpiryScheduler{Client: client, Log: log}
}

func (s *RedisExpiryScheduler) ScheduleExpiry(ctx context.Context, token string, ttl time.Duration) error {
	return s.Client.Set(ctx, expiryKeyPrefix+token, "1", ttl).Err()
}

func (s *RedisExpiryScheduler) CancelScheduled(ctx context.Context, token string) error {
	return s.Client.Del(ctx, expiryKeyPrefix+token).Err()
}

// SubscribeExpiries listens for expired shadow keys and cancels the
// matching reservation with reason "expired". Requires keyspace
// notifications ("Ex") on the Redis server; the sweep covers missed
// events either way.
func (s *RedisExpiryScheduler) SubscribeExpiries(ctx context.Context, svc *Service) {
	val, err := s.Client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		s.Log.Error("REDIS", fmt.Sprintf("Failed to get keyspace config: %v", err))
	} else if len(val) >= 2 {
		setting, _ := val[1].(string)
		if !strings.Contains(setting, "x") || !strings.Contains(setting, "E") {
			s.Log.Warn("REDIS", "Keyspace notifications not configured for expiry events; relying on sweep only")
		}
	}

	pubsub := s.Client.PSubscribe(ctx, "__keyevent@0__:expired")
	s.Log.Info("REDIS", "Subscribed to keyevent expired notifications")

	go func() {
		for msg := range pubsub.Channel() {
			if !strings.HasPrefix(msg.Payload, expiryKeyPrefix) {
				continue
			}
			token := strings.TrimPrefix(msg.Payload, expiryKeyPrefix)
			s.Log.LogReservation("EXPIRE", token, "ttl shadow key expired, cancelling")

			if err := svc.CancelReservation(ctx, token, "expired"); err != nil {
				s.Log.Error("RESERVATION", fmt.Sprintf("expiry cancellation of %s failed: %v", token, err))
			}
		}
	}()
}
