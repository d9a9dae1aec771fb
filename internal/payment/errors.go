package payment

import "errors"

var (
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrFraudBlocked is terminal; no provider is contacted.
	ErrFraudBlocked = errors.New("payment blocked by fraud screening")

	// ErrProviderFailure surfaces only after the whole provider
	// priority list has been exhausted.
	ErrProviderFailure = errors.New("all payment providers failed")

	ErrInvalidTransition = errors.New("invalid payment status transition")

	ErrReservationNotActive = errors.New("associated reservation is not active")

	ErrRetryLimitExceeded = errors.New("payment retry limit exceeded")

	ErrSignatureInvalid = errors.New("webhook signature invalid")

	ErrUnknownProvider = errors.New("unknown webhook provider")
)
