package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// GenerateReservationToken returns the opaque token handed to buyers.
func GenerateReservationToken() string {
	return "res_" + uuid.NewString()
}

// GeneratePaymentID returns an internal payment identifier.
func GeneratePaymentID() string {
	return "pay_" + uuid.NewString()
}

// GeneratePaymentReference returns the externally visible payment
// reference shared with providers.
func GeneratePaymentReference() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("ref_%d_%06d", timestamp, randomNum.Int64())
}

func GenerateTransactionID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("txn_%d_%09d", timestamp, randomNum.Int64())
}
