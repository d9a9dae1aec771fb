package reservation

import (
	"context"
	"fmt"
	"time"
)

// Sweeper periodically cancels active reservations whose expiry has
// passed. The deferred expiry schedule is a fast-path optimization;
// this sweep is the correctness guarantee across process restarts.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{Service: svc, Interval: interval}
}

// Run blocks until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	sw.Service.Logger.Info("SWEEPER", fmt.Sprintf("Expiry sweep running every %s", sw.Interval))

	for {
		select {
		case <-ctx.Done():
			sw.Service.Logger.Info("SWEEPER", "Expiry sweep stopped")
			return
		case <-ticker.C:
			sw.SweepOnce(ctx)
		}
	}
}

// SweepOnce cancels every active reservation past its expiry. Each
// cancellation is idempotent, so overlapping with the keyspace
// notification path is harmless.
func (sw *Sweeper) SweepOnce(ctx context.Context) {
	expired, err := sw.Service.DB.ExpiredActiveReservations(ctx, time.Now())
	if err != nil {
		sw.Service.Logger.Error("SWEEPER", fmt.Sprintf("scan for expired reservations failed: %v", err))
		return
	}

	for _, r := range expired {
		if err := sw.Service.CancelReservation(ctx, r.Token, "expired"); err != nil {
			sw.Service.Logger.Error("SWEEPER", fmt.Sprintf("sweep cancellation of %s failed: %v", r.Token, err))
		}
	}

	if len(expired) > 0 {
		sw.Service.Logger.Info("SWEEPER", fmt.Sprintf("Swept %d expired reservations", len(expired)))
	}
}
