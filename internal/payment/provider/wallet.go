package provider

import (
	"context"
	"fmt"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

// WalletDebiter is the slice of the payment store the wallet adapter
// needs.
type WalletDebiter interface {
	DebitWallet(userID string, amount float64, paymentID string) (string, error)
}

// WalletProvider settles payments synchronously against a stored
// balance instead of dispatching to an external gateway.
type WalletProvider struct {
	store WalletDebiter
	log   *logger.Logger
}

func NewWalletProvider(store WalletDebiter, log *logger.Logger) *WalletProvider {
	return &WalletProvider{store: store, log: log}
}

func (w *WalletProvider) Name() string {
	return "wallet"
}

func (w *WalletProvider) Dispatch(ctx context.Context, payment *models.Payment) (*DispatchResult, error) {
	txnID, err := w.store.DebitWallet(payment.UserID, payment.Amount, payment.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("wallet: debit failed: %w", err)
	}

	w.log.LogPayment("SETTLE", payment.PaymentID,
		fmt.Sprintf("wallet debit %s settled synchronously", txnID))

	return &DispatchResult{
		ExternalReference: txnID,
		Status:            models.StatusCompleted,
	}, nil
}

// CheckStatus is trivial: wallet settlement never leaves this process.
func (w *WalletProvider) CheckStatus(ctx context.Context, externalRef string) (models.PaymentStatus, error) {
	return models.StatusCompleted, nil
}
