package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/models"
)

type ReservationRepo struct {
	db db.DB
}

func NewReservationRepo(database db.DB) *ReservationRepo {
	return &ReservationRepo{db: database}
}

func (r *ReservationRepo) CreateTx(ctx context.Context, tx db.Tx, res *models.CommissionReservation) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO commission_reservations (
            id, driver_id, trip_id, amount, percentage, status,
            expires_at, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, res.ID, res.DriverID, res.TripID, res.Amount, res.Percentage, string(res.Status),
		res.ExpiresAt, res.CreatedAt, res.UpdatedAt)
	return err
}

func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*models.CommissionReservation, error) {
	var row reservationRow
	err := r.db.Get(ctx, &row, "SELECT * FROM commission_reservations WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeReservationNotFound, "reservation not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (r *ReservationRepo) GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.CommissionReservation, error) {
	var row reservationRow
	err := tx.Get(ctx, &row, "SELECT * FROM commission_reservations WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeReservationNotFound, "reservation not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.ReservationStatus, at time.Time) error {
	tag, err := tx.Exec(ctx, `
        UPDATE commission_reservations SET status = $1, updated_at = $2 WHERE id = $3
    `, string(status), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodeReservationNotFound, "reservation not found")
	}
	return nil
}

func (r *ReservationRepo) ListExpiredPending(ctx context.Context, before time.Time) ([]models.CommissionReservation, error) {
	var rows []reservationRow
	err := r.db.Select(ctx, &rows, `
        SELECT * FROM commission_reservations
        WHERE status = $1 AND expires_at < $2
        ORDER BY expires_at ASC
    `, string(models.ReservationPending), before)
	if err != nil {
		return nil, err
	}
	out := make([]models.CommissionReservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
