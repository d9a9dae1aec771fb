package payment

import (
	"fmt"
	"strings"
	"time"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

// FraudHistory is the slice of the payment store the scorer reads.
type FraudHistory interface {
	CountRecentPayments(contact string, since time.Time) (int, error)
	AverageAmount(contact string) (float64, error)
}

// FraudScorer computes a bounded heuristic risk score in [0,100].
// No single signal disqualifies on its own; the orchestrator blocks
// above its configured threshold.
type FraudScorer struct {
	History FraudHistory
	Log     *logger.Logger

	now func() time.Time
}

func NewFraudScorer(history FraudHistory, log *logger.Logger) *FraudScorer {
	return &FraudScorer{History: history, Log: log, now: time.Now}
}

func (f *FraudScorer) Score(req models.PaymentRequest) int {
	score := 0
	now := f.now()

	// Request velocity from the same contact in the last hour.
	recent, err := f.History.CountRecentPayments(req.Contact, now.Add(-time.Hour))
	if err != nil {
		f.Log.Warn("FRAUD", fmt.Sprintf("velocity lookup failed for %s: %v", req.Contact, err))
	} else if recent >= 5 {
		score += 40
	} else if recent >= 3 {
		score += 20
	}

	// Deviation from the customer's historical average.
	avg, err := f.History.AverageAmount(req.Contact)
	if err != nil {
		f.Log.Warn("FRAUD", fmt.Sprintf("history lookup failed for %s: %v", req.Contact, err))
	} else if avg > 0 && req.Amount > 5*avg {
		score += 25
	}

	if suspiciousContact(req.Contact) {
		score += 15
	}

	// Purchases in the dead of night score higher.
	hour := now.Hour()
	if hour >= 0 && hour < 5 {
		score += 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// suspiciousContact flags obviously fabricated contacts: too short,
// or a phone number that is one digit repeated.
func suspiciousContact(contact string) bool {
	if len(contact) < 7 {
		return true
	}

	digits := strings.TrimLeft(contact, "+")
	if digits == "" {
		return true
	}
	allDigits := true
	sameDigit := true
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			allDigits = false
			break
		}
		if digits[i] != digits[0] {
			sameDigit = false
		}
	}
	return allDigits && sameDigit
}
