package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Database    DatabaseConfig
	Reservation ReservationConfig
	Payment     PaymentConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	Topics   TopicConfig
	MockMode bool
	Enabled  bool
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type TopicConfig struct {
	ReservationEvents string
	PaymentEvents     string
	FraudAlerts       string
}

type ReservationConfig struct {
	TTL           time.Duration
	LockTTL       time.Duration
	SweepInterval time.Duration
}

type PaymentConfig struct {
	FraudThreshold int
	MaxRetries     int
	Providers      []ProviderConfig
	// WebhookSecrets maps provider name to its shared HMAC secret.
	WebhookSecrets map[string]string
}

type ProviderConfig struct {
	Name    string
	Method  string
	BaseURL string
	APIKey  string
	Secret  string
}

func Load() *Config {
	kafkaEnabled := getEnvBool("KAFKA_ENABLED", true)
	mockMode := getEnvBool("KAFKA_MOCK_MODE", false)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "ticket_user"),
			Password:     getEnv("DB_PASSWORD", "ticket_pass"),
			Database:     getEnv("DB_NAME", "ticket_ledger"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID:  getEnv("KAFKA_GROUP_ID", "reservation-engine-group"),
			Enabled:  kafkaEnabled,
			MockMode: mockMode,
			Topics: TopicConfig{
				ReservationEvents: getEnv("KAFKA_TOPIC_RESERVATIONS", "reservation-events"),
				PaymentEvents:     getEnv("KAFKA_TOPIC_PAYMENTS", "payment-events"),
				FraudAlerts:       getEnv("KAFKA_TOPIC_FRAUD", "fraud-alerts"),
			},
		},
		Reservation: ReservationConfig{
			TTL:           getEnvDuration("RESERVATION_TTL_MINUTES", 15) * time.Minute,
			LockTTL:       getEnvDuration("RESERVATION_LOCK_TTL_SECONDS", 10) * time.Second,
			SweepInterval: getEnvDuration("RESERVATION_SWEEP_SECONDS", 60) * time.Second,
		},
		Payment: PaymentConfig{
			FraudThreshold: getEnvInt("FRAUD_BLOCK_THRESHOLD", 80),
			MaxRetries:     getEnvInt("PAYMENT_MAX_RETRIES", 3),
			Providers: []ProviderConfig{
				{
					Name:    getEnv("MOMO_PRIMARY_NAME", "momo-primary"),
					Method:  "mobile_money",
					BaseURL: getEnv("MOMO_PRIMARY_URL", "https://momo-primary.example.com"),
					APIKey:  getEnv("MOMO_PRIMARY_API_KEY", ""),
					Secret:  getEnv("MOMO_PRIMARY_SECRET", ""),
				},
				{
					Name:    getEnv("MOMO_SECONDARY_NAME", "momo-secondary"),
					Method:  "mobile_money",
					BaseURL: getEnv("MOMO_SECONDARY_URL", "https://momo-secondary.example.com"),
					APIKey:  getEnv("MOMO_SECONDARY_API_KEY", ""),
					Secret:  getEnv("MOMO_SECONDARY_SECRET", ""),
				},
				{
					Name:    getEnv("BANK_GATEWAY_NAME", "bank-gateway"),
					Method:  "bank",
					BaseURL: getEnv("BANK_GATEWAY_URL", "https://bank-gateway.example.com"),
					APIKey:  getEnv("BANK_GATEWAY_API_KEY", ""),
					Secret:  getEnv("BANK_GATEWAY_SECRET", ""),
				},
			},
			WebhookSecrets: map[string]string{
				getEnv("MOMO_PRIMARY_NAME", "momo-primary"):     getEnv("MOMO_PRIMARY_SECRET", ""),
				getEnv("MOMO_SECONDARY_NAME", "momo-secondary"): getEnv("MOMO_SECONDARY_SECRET", ""),
				getEnv("BANK_GATEWAY_NAME", "bank-gateway"):     getEnv("BANK_GATEWAY_SECRET", ""),
				"stripe": getEnv("STRIPE_WEBHOOK_SECRET", ""),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue))
}
