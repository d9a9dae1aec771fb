package reservation

import (
	"context"
	"fmt"
	"time"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/utils"
)

type Ledger interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservationByToken(ctx context.Context, token string) (*models.Reservation, error)
	UpdateReservation(ctx context.Context, r *models.Reservation) error
	ActiveReservationsByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error)
	ExpiredActiveReservations(ctx context.Context, now time.Time) ([]models.Reservation, error)
	CountAvailableTickets(ctx context.Context, eventID, ticketType string) (int, error)
	// AllocateTickets marks exactly quantity available rows sold and
	// the reservation confirmed, in one transaction with row locking.
	AllocateTickets(ctx context.Context, r *models.Reservation, paymentID string) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) (bool, error)
}

type Counters interface {
	Available(ctx context.Context, eventID, ticketType string) (int, error)
	Reserved(ctx context.Context, eventID, ticketType string) (int, error)
	AddReserved(ctx context.Context, eventID, ticketType string, delta int) error
	AddSold(ctx context.Context, eventID, ticketType string, delta int) error
	AddAvailable(ctx context.Context, eventID, ticketType string, delta int) error
}

// ExpiryScheduler schedules a best-effort deferred cancellation. The
// periodic sweep is the correctness guarantee when a schedule is lost.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, token string, ttl time.Duration) error
	CancelScheduled(ctx context.Context, token string) error
}

type EventPublisher interface {
	PublishReservationCreated(r models.Reservation) error
	PublishReservationConfirmed(r models.Reservation) error
	PublishReservationCancelled(r models.Reservation) error
}

type Service struct {
	DB        Ledger
	Lock      Locker
	Counters  Counters
	Scheduler ExpiryScheduler
	Events    EventPublisher
	Logger    *logger.Logger

	TTL     time.Duration
	LockTTL time.Duration

	now func() time.Time
}

func NewService(db Ledger, lock Locker, counters Counters, scheduler ExpiryScheduler, events EventPublisher, log *logger.Logger, ttl, lockTTL time.Duration) *Service {
	return &Service{
		DB:        db,
		Lock:      lock,
		Counters:  counters,
		Scheduler: scheduler,
		Events:    events,
		Logger:    log,
		TTL:       ttl,
		LockTTL:   lockTTL,
		now:       time.Now,
	}
}

func admissionLockKey(eventID, ticketType string) string {
	return fmt.Sprintf("resv:%s:%s", eventID, ticketType)
}

func confirmLockKey(token string) string {
	return "resv_confirm:" + token
}

// Reserve admits a new reservation under the (event, ticketType) lock.
// Two concurrent calls for the same key are serialized, so both cannot
// pass the availability check when inventory only covers one.
func (s *Service) Reserve(ctx context.Context, req models.ReservationRequest) (*models.Reservation, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}

	key := admissionLockKey(req.EventID, req.TicketType)
	lockToken, err := s.Lock.Acquire(ctx, key, s.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, rerr := s.Lock.Release(ctx, key, lockToken); rerr != nil {
			s.Logger.Error("RESERVATION", fmt.Sprintf("failed to release admission lock %s: %v", key, rerr))
		}
	}()

	available, err := s.Counters.Available(ctx, req.EventID, req.TicketType)
	if err != nil {
		return nil, fmt.Errorf("read available counter: %w", err)
	}
	reserved, err := s.Counters.Reserved(ctx, req.EventID, req.TicketType)
	if err != nil {
		return nil, fmt.Errorf("read reserved counter: %w", err)
	}

	if available-reserved < req.Quantity {
		s.Logger.LogReservation("REJECT", req.EventID+"/"+req.TicketType,
			fmt.Sprintf("requested %d, available %d, reserved %d", req.Quantity, available, reserved))
		return nil, ErrInsufficientInventory
	}

	now := s.now()
	r := &models.Reservation{
		Token:      utils.GenerateReservationToken(),
		EventID:    req.EventID,
		TicketType: req.TicketType,
		Quantity:   req.Quantity,
		OwnerID:    req.OwnerID,
		Status:     models.ReservationActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.TTL),
	}

	if err := s.DB.CreateReservation(ctx, r); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	if err := s.Counters.AddReserved(ctx, req.EventID, req.TicketType, req.Quantity); err != nil {
		// Cancel the row we just wrote; leaving it active with no
		// counter contribution would skew the reserved count when the
		// sweep later decrements it.
		r.Status = models.ReservationCancelled
		r.CancelReason = models.CancelReasonInternal
		if uerr := s.DB.UpdateReservation(ctx, r); uerr != nil {
			s.Logger.LogAnomaly("COUNTER_DESYNC",
				fmt.Sprintf("reservation %s created but reserved counter update and rollback both failed: %v, %v", r.Token, err, uerr))
		}
		return nil, fmt.Errorf("increment reserved counter: %w", err)
	}

	if err := s.Scheduler.ScheduleExpiry(ctx, r.Token, s.TTL); err != nil {
		// Best effort only; the sweep picks up lost schedules.
		s.Logger.Warn("RESERVATION", fmt.Sprintf("failed to schedule expiry for %s: %v", r.Token, err))
	}

	s.Logger.LogReservation("CREATE", r.Token,
		fmt.Sprintf("%d x %s/%s for %s, expires %s", r.Quantity, r.EventID, r.TicketType, r.OwnerID, r.ExpiresAt.Format(time.RFC3339)))

	if err := s.Events.PublishReservationCreated(*r); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish reservation created: %v", err))
	}

	return r, nil
}

// ConfirmReservation converts a paid reservation into sold ticket
// rows. The ledger transaction re-checks row availability; cached
// counters are never trusted for the final allocation.
func (s *Service) ConfirmReservation(ctx context.Context, token, paymentID string) error {
	r, err := s.loadReservation(ctx, token)
	if err != nil {
		return err
	}
	if r.Status != models.ReservationActive {
		return ErrReservationNotActive
	}
	if s.now().After(r.ExpiresAt) {
		return ErrReservationExpired
	}

	key := confirmLockKey(token)
	lockToken, err := s.Lock.Acquire(ctx, key, s.LockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if _, rerr := s.Lock.Release(ctx, key, lockToken); rerr != nil {
			s.Logger.Error("RESERVATION", fmt.Sprintf("failed to release confirm lock %s: %v", key, rerr))
		}
	}()

	// Re-read under the lock; a concurrent cancel may have won.
	r, err = s.loadReservation(ctx, token)
	if err != nil {
		return err
	}
	if r.Status != models.ReservationActive {
		return ErrReservationNotActive
	}

	if err := s.DB.AllocateTickets(ctx, r, paymentID); err != nil {
		if err == ErrInsufficientLedgerStock {
			s.Logger.LogAnomaly("LEDGER_SHORTFALL",
				fmt.Sprintf("reservation %s admitted for %d x %s/%s but ledger ran short", token, r.Quantity, r.EventID, r.TicketType))
		}
		return err
	}

	if err := s.Counters.AddReserved(ctx, r.EventID, r.TicketType, -r.Quantity); err != nil {
		s.Logger.Error("INVENTORY", fmt.Sprintf("decrement reserved after confirm %s: %v", token, err))
	}
	if err := s.Counters.AddSold(ctx, r.EventID, r.TicketType, r.Quantity); err != nil {
		s.Logger.Error("INVENTORY", fmt.Sprintf("increment sold after confirm %s: %v", token, err))
	}
	if err := s.Counters.AddAvailable(ctx, r.EventID, r.TicketType, -r.Quantity); err != nil {
		s.Logger.Error("INVENTORY", fmt.Sprintf("decrement available after confirm %s: %v", token, err))
	}

	if err := s.Scheduler.CancelScheduled(ctx, token); err != nil {
		s.Logger.Warn("RESERVATION", fmt.Sprintf("cancel scheduled expiry for %s: %v", token, err))
	}

	s.Logger.LogReservation("CONFIRM", token, fmt.Sprintf("confirmed with payment %s", paymentID))

	r.Status = models.ReservationConfirmed
	r.PaymentID = paymentID
	if err := s.Events.PublishReservationConfirmed(*r); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish reservation confirmed: %v", err))
	}

	return nil
}

// CancelReservation is an idempotent no-op when the reservation is
// missing or already terminal.
func (s *Service) CancelReservation(ctx context.Context, token, reason string) error {
	r, err := s.DB.GetReservationByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("load reservation %s: %w", token, err)
	}
	if r == nil || r.Terminal() {
		return nil
	}

	key := confirmLockKey(token)
	lockToken, err := s.Lock.Acquire(ctx, key, s.LockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if _, rerr := s.Lock.Release(ctx, key, lockToken); rerr != nil {
			s.Logger.Error("RESERVATION", fmt.Sprintf("failed to release confirm lock %s: %v", key, rerr))
		}
	}()

	r, err = s.DB.GetReservationByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("load reservation %s: %w", token, err)
	}
	if r == nil || r.Terminal() {
		return nil
	}

	r.Status = models.ReservationCancelled
	r.CancelReason = reason
	if err := s.DB.UpdateReservation(ctx, r); err != nil {
		return fmt.Errorf("cancel reservation %s: %w", token, err)
	}

	if err := s.Counters.AddReserved(ctx, r.EventID, r.TicketType, -r.Quantity); err != nil {
		s.Logger.Error("INVENTORY", fmt.Sprintf("decrement reserved after cancel %s: %v", token, err))
	}

	if err := s.Scheduler.CancelScheduled(ctx, token); err != nil {
		s.Logger.Warn("RESERVATION", fmt.Sprintf("cancel scheduled expiry for %s: %v", token, err))
	}

	s.Logger.LogReservation("CANCEL", token, "reason: "+reason)

	if err := s.Events.PublishReservationCancelled(*r); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish reservation cancelled: %v", err))
	}

	return nil
}

func (s *Service) GetReservation(ctx context.Context, token string) (*models.Reservation, error) {
	return s.loadReservation(ctx, token)
}

// GetUserReservations returns the owner's currently active
// reservations. Callers use this to cap concurrent holds per user.
func (s *Service) GetUserReservations(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	return s.DB.ActiveReservationsByOwner(ctx, ownerID)
}

func (s *Service) loadReservation(ctx context.Context, token string) (*models.Reservation, error) {
	r, err := s.DB.GetReservationByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", token, err)
	}
	if r == nil {
		return nil, ErrReservationNotFound
	}
	return r, nil
}
