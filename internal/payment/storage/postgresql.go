package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"ms-reservations/internal/config"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/utils"
	"time"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates a payment store over an existing
// database connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment tables: %w", err)
	}

	log.Info("DATABASE", "Payment storage initialized with existing connection")
	return store, nil
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open PostgreSQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping PostgreSQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established and tables initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payment tables if not exist")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			payment_id VARCHAR(64) PRIMARY KEY,
			reference VARCHAR(64) NOT NULL,
			idempotency_key VARCHAR(128),
			user_id VARCHAR(64) NOT NULL,
			reservation_token VARCHAR(64),
			amount DECIMAL(12,2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			method VARCHAR(32) NOT NULL,
			contact VARCHAR(128) NOT NULL,
			fraud_score INT NOT NULL DEFAULT 0,
			status VARCHAR(32) NOT NULL,
			provider VARCHAR(64),
			provider_ref VARCHAR(128),
			retry_count INT NOT NULL DEFAULT 0,
			failure_reason TEXT,
			initiated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP,
			failed_at TIMESTAMP,
			expires_at TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_idempotency_key
			ON payments(idempotency_key) WHERE idempotency_key IS NOT NULL AND idempotency_key <> '';`,
		`CREATE INDEX IF NOT EXISTS idx_payments_provider_ref ON payments(provider, provider_ref);`,
		`CREATE INDEX IF NOT EXISTS idx_payments_contact ON payments(contact, initiated_at);`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id BIGSERIAL PRIMARY KEY,
			provider VARCHAR(64) NOT NULL,
			reference VARCHAR(128) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			idempotency_key VARCHAR(256) NOT NULL UNIQUE,
			outcome VARCHAR(32) NOT NULL,
			received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id VARCHAR(64) PRIMARY KEY,
			balance DECIMAL(12,2) NOT NULL DEFAULT 0,
			currency VARCHAR(8) NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
			txn_id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			payment_id VARCHAR(64) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run schema statement: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Payment tables and indexes ready")
	return nil
}

const paymentColumns = `payment_id, reference, idempotency_key, user_id, reservation_token,
	amount, currency, method, contact, fraud_score, status, provider, provider_ref,
	retry_count, failure_reason, initiated_at, completed_at, failed_at, expires_at`

func (s *PostgreSQLStore) scanPayment(row interface {
	Scan(dest ...interface{}) error
}) (*models.Payment, error) {
	payment := &models.Payment{}
	var idemKey, reservationToken, provider, providerRef, failureReason sql.NullString
	var completedAt, failedAt, expiresAt sql.NullTime

	err := row.Scan(
		&payment.PaymentID, &payment.Reference, &idemKey, &payment.UserID, &reservationToken,
		&payment.Amount, &payment.Currency, &payment.Method, &payment.Contact, &payment.FraudScore,
		&payment.Status, &provider, &providerRef, &payment.RetryCount, &failureReason,
		&payment.InitiatedAt, &completedAt, &failedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	payment.IdempotencyKey = idemKey.String
	payment.ReservationToken = reservationToken.String
	payment.Provider = provider.String
	payment.ProviderRef = providerRef.String
	payment.FailureReason = failureReason.String
	if completedAt.Valid {
		payment.CompletedAt = &completedAt.Time
	}
	if failedAt.Valid {
		payment.FailedAt = &failedAt.Time
	}
	if expiresAt.Valid {
		payment.ExpiresAt = &expiresAt.Time
	}
	return payment, nil
}

func (s *PostgreSQLStore) SavePayment(payment *models.Payment) error {
	s.log.LogDatabase("INSERT", "payments", fmt.Sprintf("Saving payment %s", payment.PaymentID))

	query := `
    INSERT INTO payments (` + paymentColumns + `)
    VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11,
            NULLIF($12, ''), NULLIF($13, ''), $14, NULLIF($15, ''), $16, $17, $18, $19)
    `

	_, err := s.db.Exec(query,
		payment.PaymentID, payment.Reference, payment.IdempotencyKey, payment.UserID, payment.ReservationToken,
		payment.Amount, payment.Currency, payment.Method, payment.Contact, payment.FraudScore,
		payment.Status, payment.Provider, payment.ProviderRef, payment.RetryCount, payment.FailureReason,
		payment.InitiatedAt, payment.CompletedAt, payment.FailedAt, payment.ExpiresAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}

	return nil
}

func (s *PostgreSQLStore) GetPayment(id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`

	payment, err := s.scanPayment(s.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment %s: %s", id, err.Error()))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// GetPaymentByIdempotencyKey returns nil without error when no payment
// carries the key.
func (s *PostgreSQLStore) GetPaymentByIdempotencyKey(key string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`

	payment, err := s.scanPayment(s.db.QueryRow(query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment by idempotency key: %s", err.Error()))
		return nil, fmt.Errorf("failed to get payment by idempotency key: %w", err)
	}
	return payment, nil
}

func (s *PostgreSQLStore) GetPaymentByProviderRef(provider, ref string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND provider_ref = $2`

	payment, err := s.scanPayment(s.db.QueryRow(query, provider, ref))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment by provider ref %s/%s: %s", provider, ref, err.Error()))
		return nil, fmt.Errorf("failed to get payment by provider ref: %w", err)
	}
	return payment, nil
}

func (s *PostgreSQLStore) UpdatePayment(payment *models.Payment) error {
	s.log.LogDatabase("UPDATE", "payments", fmt.Sprintf("Updating payment %s -> %s", payment.PaymentID, payment.Status))

	query := `
    UPDATE payments SET
        status = $1, provider = NULLIF($2, ''), provider_ref = NULLIF($3, ''),
        retry_count = $4, failure_reason = NULLIF($5, ''), fraud_score = $6,
        completed_at = $7, failed_at = $8
    WHERE payment_id = $9
    `

	_, err := s.db.Exec(query,
		payment.Status, payment.Provider, payment.ProviderRef,
		payment.RetryCount, payment.FailureReason, payment.FraudScore,
		payment.CompletedAt, payment.FailedAt, payment.PaymentID,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to update payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to update payment: %w", err)
	}

	return nil
}

func (s *PostgreSQLStore) ListPaymentsByUser(userID string, limit, offset int) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
    FROM payments
    WHERE user_id = $1
    ORDER BY initiated_at DESC
    LIMIT $2 OFFSET $3
    `

	rows, err := s.db.Query(query, userID, limit, offset)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list payments: %s", err.Error()))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := s.scanPayment(rows)
		if err != nil {
			s.log.Error("DATABASE", fmt.Sprintf("Failed to scan payment row: %s", err.Error()))
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return payments, nil
}

// CountRecentPayments counts initiations from a contact since the
// given time; feeds the velocity fraud signal.
func (s *PostgreSQLStore) CountRecentPayments(contact string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM payments WHERE contact = $1 AND initiated_at >= $2`,
		contact, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent payments: %w", err)
	}
	return count, nil
}

// AverageAmount returns the contact's historical completed-payment
// average, or 0 when there is no history.
func (s *PostgreSQLStore) AverageAmount(contact string) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT AVG(amount) FROM payments WHERE contact = $1 AND status = $2`,
		contact, models.StatusCompleted,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to compute average amount: %w", err)
	}
	return avg.Float64, nil
}

// MarkWebhookReceived inserts the delivery record. Returns false when
// the idempotency key was already recorded, meaning a duplicate. A
// delivery whose previous attempt ended in "failed" is reopened so the
// provider's redelivery can retry it.
func (s *PostgreSQLStore) MarkWebhookReceived(delivery *models.WebhookDelivery) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO webhook_deliveries (provider, reference, event_type, idempotency_key, outcome, received_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         ON CONFLICT (idempotency_key) DO UPDATE
            SET outcome = EXCLUDED.outcome, received_at = EXCLUDED.received_at
          WHERE webhook_deliveries.outcome = $7`,
		delivery.Provider, delivery.Reference, delivery.EventType,
		delivery.IdempotencyKey, models.WebhookOutcomeReceived, time.Now(),
		models.WebhookOutcomeFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read webhook insert result: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgreSQLStore) RecordWebhookOutcome(idempotencyKey, outcome string) error {
	_, err := s.db.Exec(
		`UPDATE webhook_deliveries SET outcome = $1 WHERE idempotency_key = $2`,
		outcome, idempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook outcome: %w", err)
	}
	return nil
}

/// DebitWallet settles a wallet payment synchronously: the balance row
// is locked, checked, and debited in one transaction.
func (s *PostgreSQLStore) DebitWallet(userID string, amount float64, paymentID string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin wallet transaction: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRow(
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrInsufficientFunds
		}
		return "", fmt.Errorf("failed to lock wallet row: %w", err)
	}

	if balance < amount {
		return "", ErrInsufficientFunds
	}

	_, err = tx.Exec(
		`UPDATE wallets SET balance = balance - $1, updated_at = $2 WHERE user_id = $3`,
		amount, time.Now(), userID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to debit wallet: %w", err)
	}

	txnID := utils.GenerateTransactionID()
	_, err = tx.Exec(
		`INSERT INTO wallet_transactions (txn_id, user_id, payment_id, amount, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		txnID, userID, paymentID, amount, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record wallet transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit wallet transaction: %w", err)
	}

	s.log.LogDatabase("DEBIT", "wallets", fmt.Sprintf("Debited %.2f from %s for payment %s", amount, userID, paymentID))
	return txnID, nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "postgresql", "Closing PostgreSQL connection")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
