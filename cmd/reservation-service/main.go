package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-reservations/internal/api"
	"ms-reservations/internal/config"
	"ms-reservations/internal/database/migrations"
	"ms-reservations/internal/inventory"
	"ms-reservations/internal/kafka"
	"ms-reservations/internal/lock"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/payment"
	"ms-reservations/internal/payment/provider"
	"ms-reservations/internal/payment/storage"
	"ms-reservations/internal/reservation"
	resdb "ms-reservations/internal/reservation/db"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()
	ctx := context.Background()

	// --- Ledger (PostgreSQL via bun) ---
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if os.Getenv("AUTO_MIGRATE") == "true" {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.RunMigrations(); err != nil {
			log.Warn("DATABASE", fmt.Sprintf("Versioned migrations failed, falling back to dev bootstrap: %v", err))
			resdb.Migrate(bunDB)
		}
	} else {
		resdb.Migrate(bunDB)
	}

	ledger := resdb.New(bunDB)

	// --- Payment store (PostgreSQL via lib/pq) ---
	paymentStore, err := storage.NewPostgreSQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize payment store: %v", err))
	}
	defer paymentStore.Close()

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	// --- Kafka ---
	var events *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.ReservationEvents,
			cfg.Kafka.Topics.PaymentEvents,
			cfg.Kafka.Topics.FraudAlerts,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
	}
	events = kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer events.Close()

	// --- Core wiring ---
	distLock := lock.NewLock(redisClient, log)
	counters := inventory.NewCounters(redisClient, log, ledger.CountAvailableTickets, 5*time.Minute)
	scheduler := reservation.NewRedisExpiryScheduler(redisClient, log)

	reservations := reservation.NewService(
		ledger, distLock, counters, scheduler, events, log,
		cfg.Reservation.TTL, cfg.Reservation.LockTTL,
	)

	registry := provider.NewRegistry()
	for _, pc := range cfg.Payment.Providers {
		registry.Register(pc.Method, provider.NewHTTPGateway(pc.Name, pc.BaseURL, pc.APIKey, pc.Secret, log))
	}
	if stripeProvider, err := provider.NewStripeProvider(log); err != nil {
		log.Warn("STRIPE", fmt.Sprintf("Card payments disabled: %v", err))
	} else {
		registry.Register("card", stripeProvider)
	}
	registry.Register("wallet", provider.NewWalletProvider(paymentStore, log))

	fraud := payment.NewFraudScorer(paymentStore, log)
	payments := payment.NewService(
		paymentStore, registry, reservations, events, fraud, log,
		cfg.Payment.FraudThreshold, cfg.Payment.MaxRetries, cfg.Payment.WebhookSecrets,
	)

	// --- Background expiry handling ---
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()

	scheduler.SubscribeExpiries(sweepCtx, reservations)
	sweeper := reservation.NewSweeper(reservations, cfg.Reservation.SweepInterval)
	go sweeper.Run(sweepCtx)

	// --- HTTP server ---
	r := chi.NewRouter()
	handler := api.NewHandler(reservations, payments, log)
	handler.Routes(r)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := paymentStore.HealthCheck(); err != nil {
			http.Error(w, "payment store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Reservation engine listening on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("Server failed: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("SERVER", "Shutting down...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("SERVER", fmt.Sprintf("Graceful shutdown failed: %v", err))
	}
	log.Info("SERVER", "Stopped")
}
