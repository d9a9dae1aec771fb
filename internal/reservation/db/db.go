package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-reservations/internal/models"
	"ms-reservations/internal/reservation"
)

// DB is the ledger access layer for reservations and ticket rows.
type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// rowLocking reports whether the dialect supports SELECT ... FOR
// UPDATE. The sqlite dialect used by tests does not; its transactions
// are serialized by the database itself.
func (d *DB) rowLocking() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}

func (d *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(ctx)
	return err
}

// GetReservationByToken returns nil without error when no row exists.
func (d *DB) GetReservationByToken(ctx context.Context, token string) (*models.Reservation, error) {
	var r models.Reservation
	err := d.Bun.NewSelect().
		Model(&r).
		Where("token = ?", token).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) UpdateReservation(ctx context.Context, r *models.Reservation) error {
	_, err := d.Bun.NewUpdate().
		Model(r).
		Column("status", "cancel_reason", "payment_id").
		Where("token = ?", r.Token).
		Exec(ctx)
	return err
}

func (d *DB) ActiveReservationsByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("owner_id = ?", ownerID).
		Where("status = ?", models.ReservationActive).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func (d *DB) ExpiredActiveReservations(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("status = ?", models.ReservationActive).
		Where("expires_at < ?", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// CountAvailableTickets is the authoritative available count, used to
// refill the cached counter.
func (d *DB) CountAvailableTickets(ctx context.Context, eventID, ticketType string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("ticket_type = ?", ticketType).
		Where("status = ?", models.TicketAvailable).
		Count(ctx)
}

// AllocateTickets selects exactly r.Quantity available rows with row
// locking, marks them sold, and confirms the reservation, all in one
// transaction. A shortfall rolls everything back with
// reservation.ErrInsufficientLedgerStock.
func (d *DB) AllocateTickets(ctx context.Context, r *models.Reservation, paymentID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var tickets []models.Ticket
		q := tx.NewSelect().
			Model(&tickets).
			Where("event_id = ?", r.EventID).
			Where("ticket_type = ?", r.TicketType).
			Where("status = ?", models.TicketAvailable).
			Order("ticket_id").
			Limit(r.Quantity)
		if d.rowLocking() {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}

		if len(tickets) < r.Quantity {
			return reservation.ErrInsufficientLedgerStock
		}

		ids := make([]string, len(tickets))
		for i, t := range tickets {
			ids[i] = t.TicketID
		}

		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketSold).
			Set("owner_id = ?", r.OwnerID).
			Set("payment_id = ?", paymentID).
			Set("sold_at = ?", time.Now()).
			Where("ticket_id IN (?)", bun.In(ids)).
			Where("status = ?", models.TicketAvailable).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, aerr := res.RowsAffected(); aerr == nil && int(affected) != len(ids) {
			// Another transaction grabbed a row between select and
			// update; only possible without row locking.
			return reservation.ErrInsufficientLedgerStock
		}

		_, err = tx.NewUpdate().
			Model((*models.Reservation)(nil)).
			Set("status = ?", models.ReservationConfirmed).
			Set("payment_id = ?", paymentID).
			Where("token = ?", r.Token).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("confirm reservation row: %w", err)
		}

		r.Status = models.ReservationConfirmed
		r.PaymentID = paymentID
		return nil
	})
}
