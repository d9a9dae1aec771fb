package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-reservations/internal/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    models.PaymentStatus
		to      models.PaymentStatus
		allowed bool
	}{
		{models.StatusPending, models.StatusProcessing, true},
		{models.StatusPending, models.StatusFailed, true},
		{models.StatusPending, models.StatusCancelled, true},
		{models.StatusPending, models.StatusCompleted, false},
		{models.StatusPending, models.StatusRefunded, false},

		{models.StatusProcessing, models.StatusCompleted, true},
		{models.StatusProcessing, models.StatusFailed, true},
		{models.StatusProcessing, models.StatusCancelled, true},
		{models.StatusProcessing, models.StatusPending, false},

		{models.StatusCompleted, models.StatusRefunded, true},
		{models.StatusCompleted, models.StatusPartiallyRefunded, true},
		{models.StatusCompleted, models.StatusFailed, false},
		{models.StatusCompleted, models.StatusPending, false},

		// failed -> pending is the retry edge, and the only way out.
		{models.StatusFailed, models.StatusPending, true},
		{models.StatusFailed, models.StatusProcessing, false},
		{models.StatusFailed, models.StatusCompleted, false},

		{models.StatusCancelled, models.StatusPending, false},
		{models.StatusCancelled, models.StatusCompleted, false},
		{models.StatusRefunded, models.StatusPending, false},
		{models.StatusRefunded, models.StatusCompleted, false},

		{models.StatusPartiallyRefunded, models.StatusRefunded, true},
		{models.StatusPartiallyRefunded, models.StatusPending, false},
	}

	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		assert.Equal(t, tc.allowed, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, (&models.Payment{Status: models.StatusCancelled}).Terminal())
	assert.True(t, (&models.Payment{Status: models.StatusRefunded}).Terminal())
	assert.False(t, (&models.Payment{Status: models.StatusCompleted}).Terminal())
	assert.False(t, (&models.Payment{Status: models.StatusFailed}).Terminal())
	assert.False(t, (&models.Payment{Status: models.StatusPending}).Terminal())
}
