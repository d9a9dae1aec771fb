package models

import "time"

type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WalletTransaction struct {
	TxnID     string    `json:"txn_id"`
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
