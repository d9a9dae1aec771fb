package payment

import "ms-reservations/internal/models"

// allowedTransitions is the only legal edge set for payment status.
// failed -> pending exists solely for retries.
var allowedTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.StatusPending:           {models.StatusProcessing, models.StatusFailed, models.StatusCancelled},
	models.StatusProcessing:        {models.StatusCompleted, models.StatusFailed, models.StatusCancelled},
	models.StatusCompleted:         {models.StatusRefunded, models.StatusPartiallyRefunded},
	models.StatusFailed:            {models.StatusPending},
	models.StatusCancelled:         {},
	models.StatusRefunded:          {},
	models.StatusPartiallyRefunded: {models.StatusRefunded},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to models.PaymentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
