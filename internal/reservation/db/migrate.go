package db

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"ms-reservations/internal/models"
)

// Migrate creates the ledger tables for local development. Production
// schemas are managed by the migration runner.
func Migrate(bunDB *bun.DB) {
	ctx := context.Background()

	_, err := bunDB.NewCreateTable().Model((*models.Reservation)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		log.Fatalf("create reservations table failed: %v", err)
	}

	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		log.Fatalf("create tickets table failed: %v", err)
	}

	log.Println("ledger tables ready")
}
