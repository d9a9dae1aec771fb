package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"ms-reservations/internal/models"
)

// WebhookResult reports what a delivery did. Duplicate deliveries are
// acknowledged without side effects.
type WebhookResult struct {
	Duplicate bool                 `json:"duplicate"`
	PaymentID string               `json:"payment_id,omitempty"`
	Status    models.PaymentStatus `json:"status,omitempty"`
}

func webhookIdempotencyKey(provider, reference, eventType string) string {
	return provider + ":" + reference + ":" + eventType
}

// eventStatus maps provider event types onto the payment state
// machine.
func eventStatus(eventType string) (models.PaymentStatus, bool) {
	switch eventType {
	case "payment.completed", "collection.successful":
		return models.StatusCompleted, true
	case "payment.failed", "collection.failed":
		return models.StatusFailed, true
	case "payment.cancelled":
		return models.StatusCancelled, true
	case "payment.refunded":
		return models.StatusRefunded, true
	case "payment.partially_refunded":
		return models.StatusPartiallyRefunded, true
	default:
		return "", false
	}
}

// ProcessWebhook verifies, deduplicates, and applies one provider
// callback. The delivery is recorded for audit regardless of outcome.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signature, providerName string) (*WebhookResult, error) {
	secret, ok := s.WebhookSecrets[providerName]
	if !ok || secret == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		s.Logger.LogSecurity("WEBHOOK_SIGNATURE",
			fmt.Sprintf("signature mismatch for provider %s", providerName))
		return nil, ErrSignatureInvalid
	}

	var wp models.WebhookPayload
	if err := json.Unmarshal(payload, &wp); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if wp.Reference == "" || wp.EventType == "" {
		return nil, fmt.Errorf("webhook payload missing reference or event_type")
	}

	idemKey := webhookIdempotencyKey(providerName, wp.Reference, wp.EventType)
	first, err := s.Store.MarkWebhookReceived(&models.WebhookDelivery{
		Provider:       providerName,
		Reference:      wp.Reference,
		EventType:      wp.EventType,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook delivery: %w", err)
	}
	if !first {
		s.Logger.LogWebhook(providerName, wp.Reference, "duplicate delivery, no side effects")
		return &WebhookResult{Duplicate: true}, nil
	}

	result, err := s.applyWebhook(ctx, providerName, wp)
	outcome := models.WebhookOutcomeProcessed
	if err != nil {
		outcome = models.WebhookOutcomeFailed
	}
	if rerr := s.Store.RecordWebhookOutcome(idemKey, outcome); rerr != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("record outcome for %s: %v", idemKey, rerr))
	}
	return result, err
}

func (s *Service) applyWebhook(ctx context.Context, providerName string, wp models.WebhookPayload) (*WebhookResult, error) {
	payment, err := s.Store.GetPaymentByProviderRef(providerName, wp.Reference)
	if err != nil {
		return nil, fmt.Errorf("locate payment for %s/%s: %w", providerName, wp.Reference, err)
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: no payment for %s/%s", ErrPaymentNotFound, providerName, wp.Reference)
	}

	target, ok := eventStatus(wp.EventType)
	if !ok {
		s.Logger.LogWebhook(providerName, wp.Reference, "unhandled event type "+wp.EventType)
		return &WebhookResult{PaymentID: payment.PaymentID, Status: payment.Status}, nil
	}

	if target == models.StatusFailed && wp.Reason != "" {
		payment.FailureReason = wp.Reason
	}

	s.Logger.LogWebhook(providerName, wp.Reference,
		fmt.Sprintf("event %s -> payment %s transition %s -> %s", wp.EventType, payment.PaymentID, payment.Status, target))

	if err := s.applyTransition(ctx, payment, target); err != nil {
		return nil, err
	}

	return &WebhookResult{PaymentID: payment.PaymentID, Status: payment.Status}, nil
}
