package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservations/internal/models"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, reference, eventType, reason string) []byte {
	body, err := json.Marshal(models.WebhookPayload{
		Reference: reference,
		EventType: eventType,
		Reason:    reason,
	})
	require.NoError(t, err)
	return body
}

// initiateProcessing sets up a fixture with one processing payment
// awaiting its webhook.
func initiateProcessing(t *testing.T) (*paymentFixture, *models.Payment) {
	f := newPaymentFixture(&fakeProvider{name: "momo-primary", status: models.StatusProcessing})
	f.seedReservation("res_abc")

	p, err := f.svc.InitiatePayment(context.Background(), paymentRequest())
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, p.Status)
	return f, p
}

func TestProcessWebhookCompletesPayment(t *testing.T) {
	f, p := initiateProcessing(t)

	body := webhookBody(t, p.ProviderRef, "payment.completed", "")
	result, err := f.svc.ProcessWebhook(context.Background(), body, sign("test-secret", body), "momo-primary")
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, p.PaymentID, result.PaymentID)
	assert.Equal(t, models.StatusCompleted, result.Status)

	stored := f.store.payments[p.PaymentID]
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	assert.Equal(t, []string{"res_abc"}, f.reservations.confirmed)
}

func TestProcessWebhookInvalidSignature(t *testing.T) {
	f, p := initiateProcessing(t)

	body := webhookBody(t, p.ProviderRef, "payment.completed", "")
	_, err := f.svc.ProcessWebhook(context.Background(), body, "deadbeef", "momo-primary")
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	// Nothing happened.
	assert.Equal(t, models.StatusProcessing, f.store.payments[p.PaymentID].Status)
	assert.Empty(t, f.reservations.confirmed)
	assert.Empty(t, f.store.deliveries)
}

func TestProcessWebhookSignatureForOtherBodyRejected(t *testing.T) {
	f, p := initiateProcessing(t)

	body := webhookBody(t, p.ProviderRef, "payment.completed", "")
	tampered := webhookBody(t, p.ProviderRef, "payment.failed", "")

	_, err := f.svc.ProcessWebhook(context.Background(), tampered, sign("test-secret", body), "momo-primary")
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestProcessWebhookUnknownProvider(t *testing.T) {
	f, p := initiateProcessing(t)

	body := webhookBody(t, p.ProviderRef, "payment.completed", "")
	_, err := f.svc.ProcessWebhook(context.Background(), body, sign("test-secret", body), "no-such-gateway")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProcessWebhookDuplicateDelivery(t *testing.T) {
	f, p := initiateProcessing(t)
	ctx := context.Background()

	body := webhookBody(t, p.ProviderRef, "payment.completed", "")
	signature := sign("test-secret", body)

	first, err := f.svc.ProcessWebhook(ctx, body, signature, "momo-primary")
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := f.svc.ProcessWebhook(ctx, body, signature, "momo-primary")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	// Exactly one confirmation despite two deliveries.
	assert.Equal(t, []string{"res_abc"}, f.reservations.confirmed)
}

func TestProcessWebhookDistinctEventTypesAreNotDuplicates(t *testing.T) {
	f, p := initiateProcessing(t)
	ctx := context.Background()

	failed := webhookBody(t, p.ProviderRef, "payment.failed", "insufficient balance")
	result, err := f.svc.ProcessWebhook(ctx, failed, sign("test-secret", failed), "momo-primary")
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, "insufficient balance", f.store.payments[p.PaymentID].FailureReason)
}

func TestProcessWebhookUnknownPaymentReference(t *testing.T) {
	f, _ := initiateProcessing(t)

	body := webhookBody(t, "no-such-ref", "payment.completed", "")
	_, err := f.svc.ProcessWebhook(context.Background(), body, sign("test-secret", body), "momo-primary")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	// The delivery itself is still recorded for audit.
	key := webhookIdempotencyKey("momo-primary", "no-such-ref", "payment.completed")
	assert.Equal(t, models.WebhookOutcomeFailed, f.store.outcomes[key])
}

func TestProcessWebhookUnhandledEventType(t *testing.T) {
	f, p := initiateProcessing(t)

	body := webhookBody(t, p.ProviderRef, "payment.pending_review", "")
	result, err := f.svc.ProcessWebhook(context.Background(), body, sign("test-secret", body), "momo-primary")
	require.NoError(t, err)

	// Acknowledged but ignored; the payment is untouched.
	assert.Equal(t, models.StatusProcessing, result.Status)
	assert.Equal(t, models.StatusProcessing, f.store.payments[p.PaymentID].Status)
}

func TestProcessWebhookIllegalTransition(t *testing.T) {
	f, p := initiateProcessing(t)
	ctx := context.Background()

	completed := webhookBody(t, p.ProviderRef, "payment.completed", "")
	_, err := f.svc.ProcessWebhook(ctx, completed, sign("test-secret", completed), "momo-primary")
	require.NoError(t, err)

	// A late "failed" event cannot claw back a completed payment.
	failed := webhookBody(t, p.ProviderRef, "payment.failed", "late failure")
	_, err = f.svc.ProcessWebhook(ctx, failed, sign("test-secret", failed), "momo-primary")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusCompleted, f.store.payments[p.PaymentID].Status)
}

func TestProcessWebhookMalformedPayload(t *testing.T) {
	f, _ := initiateProcessing(t)

	body := []byte(`{"reference": ""}`)
	_, err := f.svc.ProcessWebhook(context.Background(), body, sign("test-secret", body), "momo-primary")
	assert.Error(t, err)
}

func TestProcessWebhookRedeliveryAfterFailureRetries(t *testing.T) {
	f, p := initiateProcessing(t)
	ctx := context.Background()

	body := webhookBody(t, p.ProviderRef, "payment.completed", "")
	signature := sign("test-secret", body)

	// The first delivery fails transiently while persisting the
	// transition.
	f.store.shouldFailOn = "UpdatePayment"
	f.store.errorMsg = "connection reset"
	_, err := f.svc.ProcessWebhook(ctx, body, signature, "momo-primary")
	require.Error(t, err)
	require.Equal(t, models.StatusProcessing, f.store.payments[p.PaymentID].Status)

	// The provider redelivers; a failed attempt must not be swallowed
	// as a duplicate.
	f.store.shouldFailOn = ""
	result, err := f.svc.ProcessWebhook(ctx, body, signature, "momo-primary")
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, models.StatusCompleted, f.store.payments[p.PaymentID].Status)
	assert.Equal(t, []string{"res_abc"}, f.reservations.confirmed)

	// A third delivery after success is a plain duplicate again.
	third, err := f.svc.ProcessWebhook(ctx, body, signature, "momo-primary")
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
	assert.Equal(t, []string{"res_abc"}, f.reservations.confirmed)
}

func TestProcessWebhookRecordsOutcome(t *testing.T) {
	f, p := initiateProcessing(t)

	body := webhookBody(t, p.ProviderRef, "payment.completed", "")
	_, err := f.svc.ProcessWebhook(context.Background(), body, sign("test-secret", body), "momo-primary")
	require.NoError(t, err)

	key := webhookIdempotencyKey("momo-primary", p.ProviderRef, "payment.completed")
	assert.Equal(t, models.WebhookOutcomeProcessed, f.store.outcomes[key])
}
