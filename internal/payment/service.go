package payment

import (
	"context"
	"fmt"
	"time"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/payment/provider"
	"ms-reservations/internal/payment/storage"
	"ms-reservations/internal/utils"
)

// Reservations is the slice of the reservation manager the
// orchestrator drives: validation at initiation, confirmation on
// completed payments.
type Reservations interface {
	GetReservation(ctx context.Context, token string) (*models.Reservation, error)
	ConfirmReservation(ctx context.Context, token, paymentID string) error
}

type EventPublisher interface {
	PublishPaymentStatusChanged(payment models.Payment) error
	PublishFraudBlocked(payment models.Payment) error
}

type Scorer interface {
	Score(req models.PaymentRequest) int
}

type Service struct {
	Store        storage.Store
	Providers    *provider.Registry
	Reservations Reservations
	Events       EventPublisher
	Fraud        Scorer
	Logger       *logger.Logger

	FraudThreshold int
	MaxRetries     int
	// WebhookSecrets maps provider name to its shared HMAC secret.
	WebhookSecrets map[string]string

	now func() time.Time
}

func NewService(store storage.Store, providers *provider.Registry, reservations Reservations, events EventPublisher, fraud Scorer, log *logger.Logger, fraudThreshold, maxRetries int, webhookSecrets map[string]string) *Service {
	return &Service{
		Store:          store,
		Providers:      providers,
		Reservations:   reservations,
		Events:         events,
		Fraud:          fraud,
		Logger:         log,
		FraudThreshold: fraudThreshold,
		MaxRetries:     maxRetries,
		WebhookSecrets: webhookSecrets,
		now:            time.Now,
	}
}

// InitiatePayment creates and dispatches a payment. Repeating a call
// with the same idempotency key returns the existing payment untouched,
// which makes initiation safe to repeat after client timeouts.
func (s *Service) InitiatePayment(ctx context.Context, req models.PaymentRequest) (*models.Payment, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.Store.GetPaymentByIdempotencyKey(req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			s.Logger.LogPayment("IDEMPOTENT", existing.PaymentID,
				fmt.Sprintf("initiation replay for key %s, returning existing payment", req.IdempotencyKey))
			return existing, nil
		}
	}

	if req.ReservationToken != "" {
		res, err := s.Reservations.GetReservation(ctx, req.ReservationToken)
		if err != nil {
			return nil, fmt.Errorf("validate reservation %s: %w", req.ReservationToken, err)
		}
		if res.Status != models.ReservationActive || s.now().After(res.ExpiresAt) {
			return nil, ErrReservationNotActive
		}
	}

	score := s.Fraud.Score(req)

	payment := &models.Payment{
		PaymentID:        utils.GeneratePaymentID(),
		Reference:        utils.GeneratePaymentReference(),
		IdempotencyKey:   req.IdempotencyKey,
		UserID:           req.UserID,
		ReservationToken: req.ReservationToken,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Method:           req.Method,
		Contact:          req.Contact,
		FraudScore:       score,
		Status:           models.StatusPending,
		InitiatedAt:      s.now(),
	}

	if score > s.FraudThreshold {
		now := s.now()
		payment.Status = models.StatusFailed
		payment.FailureReason = models.FailureReasonFraudBlocked
		payment.FailedAt = &now

		// Persisted so idempotent replays return the block instead of
		// re-scoring.
		if err := s.Store.SavePayment(payment); err != nil {
			return nil, fmt.Errorf("save blocked payment: %w", err)
		}

		s.Logger.LogSecurity("FRAUD_BLOCK",
			fmt.Sprintf("payment %s blocked with score %d (threshold %d)", payment.PaymentID, score, s.FraudThreshold))

		if err := s.Events.PublishFraudBlocked(*payment); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish fraud block: %v", err))
		}
		return payment, ErrFraudBlocked
	}

	if err := s.Store.SavePayment(payment); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	s.Logger.LogPayment("INITIATE", payment.PaymentID,
		fmt.Sprintf("%s %.2f %s via %s (fraud score %d)", payment.Reference, payment.Amount, payment.Currency, payment.Method, score))

	if err := s.DispatchToProvider(ctx, payment); err != nil {
		return payment, err
	}
	return payment, nil
}

// DispatchToProvider walks the method's priority list; the first
// provider to accept wins. Every provider error is absorbed and the
// next one tried; only total exhaustion fails the payment.
func (s *Service) DispatchToProvider(ctx context.Context, payment *models.Payment) error {
	providers := s.Providers.ForMethod(payment.Method)
	if len(providers) == 0 {
		return s.failPayment(payment, fmt.Sprintf("no providers configured for method %s", payment.Method))
	}

	var lastErr error
	for _, p := range providers {
		result, err := p.Dispatch(ctx, payment)
		if err != nil {
			lastErr = err
			s.Logger.Warn("PAYMENT",
				fmt.Sprintf("provider %s failed for %s: %v, trying next", p.Name(), payment.PaymentID, err))
			continue
		}

		payment.Provider = p.Name()
		payment.ProviderRef = result.ExternalReference

		// Synchronous settlement (wallet) reports completed straight
		// from dispatch; walk the pending -> processing edge first so
		// the transition table holds.
		if result.Status == models.StatusCompleted && payment.Status == models.StatusPending {
			if err := s.applyTransition(ctx, payment, models.StatusProcessing); err != nil {
				return err
			}
		}

		if err := s.applyTransition(ctx, payment, result.Status); err != nil {
			return err
		}

		s.Logger.LogPayment("ACCEPTED", payment.PaymentID,
			fmt.Sprintf("provider %s accepted as %s", p.Name(), result.ExternalReference))
		return nil
	}

	return s.failPayment(payment, fmt.Sprintf("all providers failed, last error: %v", lastErr))
}

func (s *Service) failPayment(payment *models.Payment, reason string) error {
	now := s.now()
	payment.Status = models.StatusFailed
	payment.FailureReason = reason
	payment.FailedAt = &now

	if err := s.Store.UpdatePayment(payment); err != nil {
		return fmt.Errorf("record payment failure: %w", err)
	}

	s.Logger.LogPayment("FAILED", payment.PaymentID, reason)

	if err := s.Events.PublishPaymentStatusChanged(*payment); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish payment failed: %v", err))
	}
	return fmt.Errorf("%w: %s", ErrProviderFailure, reason)
}

// applyTransition validates the edge, persists the new status, emits
// the event, and triggers reservation confirmation on completion.
func (s *Service) applyTransition(ctx context.Context, payment *models.Payment, to models.PaymentStatus) error {
	if !CanTransition(payment.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, payment.Status, to)
	}

	payment.Status = to
	now := s.now()
	switch to {
	case models.StatusCompleted:
		payment.CompletedAt = &now
	case models.StatusFailed:
		payment.FailedAt = &now
	}

	if err := s.Store.UpdatePayment(payment); err != nil {
		return fmt.Errorf("persist transition to %s: %w", to, err)
	}

	if err := s.Events.PublishPaymentStatusChanged(*payment); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish payment status change: %v", err))
	}

	if to == models.StatusCompleted && payment.ReservationToken != "" {
		if err := s.Reservations.ConfirmReservation(ctx, payment.ReservationToken, payment.PaymentID); err != nil {
			s.Logger.Error("PAYMENT",
				fmt.Sprintf("payment %s completed but reservation %s confirmation failed: %v", payment.PaymentID, payment.ReservationToken, err))
			return fmt.Errorf("confirm reservation after completion: %w", err)
		}
	}
	return nil
}

// RetryPayment re-dispatches a failed payment, capped at MaxRetries.
func (s *Service) RetryPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.loadPayment(paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: retry only legal from failed, got %s", ErrInvalidTransition, payment.Status)
	}
	if payment.FailureReason == models.FailureReasonFraudBlocked {
		// A fraud block is final; retrying would reach a provider
		// without ever re-screening.
		return nil, ErrFraudBlocked
	}
	if payment.RetryCount >= s.MaxRetries {
		return nil, ErrRetryLimitExceeded
	}

	payment.RetryCount++
	payment.FailureReason = ""
	payment.FailedAt = nil
	if err := s.applyTransition(ctx, payment, models.StatusPending); err != nil {
		return nil, err
	}

	s.Logger.LogPayment("RETRY", payment.PaymentID,
		fmt.Sprintf("attempt %d of %d", payment.RetryCount, s.MaxRetries))

	if err := s.DispatchToProvider(ctx, payment); err != nil {
		return payment, err
	}
	return payment, nil
}

// CheckPaymentStatus returns the stored payment, polling the provider
// as a fallback while the payment is still processing and webhooks may
// be delayed.
func (s *Service) CheckPaymentStatus(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.loadPayment(paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status != models.StatusProcessing || payment.Provider == "" {
		return payment, nil
	}

	p, err := s.Providers.ByName(payment.Provider)
	if err != nil {
		return payment, nil
	}

	status, err := p.CheckStatus(ctx, payment.ProviderRef)
	if err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("status poll for %s failed: %v", payment.PaymentID, err))
		return payment, nil
	}

	if status != payment.Status && CanTransition(payment.Status, status) {
		s.Logger.LogPayment("POLL", payment.PaymentID,
			fmt.Sprintf("provider reports %s", status))
		if err := s.applyTransition(ctx, payment, status); err != nil {
			return payment, err
		}
	}
	return payment, nil
}

func (s *Service) ListUserPayments(userID string, limit, offset int) ([]*models.Payment, error) {
	return s.Store.ListPaymentsByUser(userID, limit, offset)
}

func (s *Service) loadPayment(paymentID string) (*models.Payment, error) {
	payment, err := s.Store.GetPayment(paymentID)
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}
