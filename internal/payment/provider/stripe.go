package provider

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeProvider is the card-method adapter. Card payments settle
// asynchronously via the payment intent lifecycle.
type StripeProvider struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeProvider(log *logger.Logger) (*StripeProvider, error) {
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(stripeKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeProvider{client: sc, log: log}, nil
}

func (s *StripeProvider) Name() string {
	return "stripe"
}

func (s *StripeProvider) Dispatch(ctx context.Context, payment *models.Payment) (*DispatchResult, error) {
	amountInCents := int64(payment.Amount * 100)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(payment.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("payment_id", payment.PaymentID)
	params.AddMetadata("reference", payment.Reference)

	intent, err := s.client.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	s.log.LogPayment("DISPATCH", payment.PaymentID,
		fmt.Sprintf("stripe payment intent %s created (%d cents)", intent.ID, amountInCents))

	return &DispatchResult{
		ExternalReference: intent.ID,
		Status:            models.StatusProcessing,
		ProviderData: map[string]string{
			"client_secret": intent.ClientSecret,
		},
	}, nil
}

func (s *StripeProvider) CheckStatus(ctx context.Context, externalRef string) (models.PaymentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := s.client.PaymentIntents.Get(externalRef, params)
	if err != nil {
		return "", fmt.Errorf("stripe: get payment intent %s: %w", externalRef, err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.StatusCompleted, nil
	case stripe.PaymentIntentStatusCanceled:
		return models.StatusCancelled, nil
	default:
		return models.StatusProcessing, nil
	}
}
