package reservation

import "errors"

var (
	// ErrInsufficientInventory means the admission check failed;
	// terminal for the request.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationNotActive covers confirm/cancel attempts on a
	// reservation already in a terminal state.
	ErrReservationNotActive = errors.New("reservation is not active")

	// ErrReservationExpired is returned when a reservation is still
	// marked active but its expiry has passed; callers must treat it
	// as cancelled.
	ErrReservationExpired = errors.New("reservation expired")

	// ErrInsufficientLedgerStock means the confirmation transaction
	// found fewer available ticket rows than the reservation's
	// quantity. It signals counter drift and is logged as an anomaly.
	ErrInsufficientLedgerStock = errors.New("insufficient ledger stock")
)
