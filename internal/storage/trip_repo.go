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

type TripRepo struct {
	db db.DB
}

func NewTripRepo(database db.DB) *TripRepo { return &TripRepo{db: database} }

func (r *TripRepo) Create(ctx context.Context, t *models.Trip) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO trips (
            id, driver_id, origin_lat, origin_lon, destination_lat, destination_lon,
            origin_address, destination_address, departure_time, capacity_tier,
            status, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `, t.ID, t.DriverID, t.Origin.Lat, t.Origin.Lon, t.Destination.Lat, t.Destination.Lon,
		t.OriginAddress, t.DestinationAddress, t.DepartureTime, string(t.CapacityTier),
		string(t.Status), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *TripRepo) GetByID(ctx context.Context, id string) (*models.Trip, error) {
	var row tripRow
	err := r.db.Get(ctx, &row, "SELECT * FROM trips WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeTripNotFound, "trip not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (r *TripRepo) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.TripStatus, at time.Time) error {
	tag, err := tx.Exec(ctx, "UPDATE trips SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodeTripNotFound, "trip not found")
	}
	return nil
}

// ListScheduledWithin returns scheduled trips departing between now and the
// given bound, soonest first.
func (r *TripRepo) ListScheduledWithin(ctx context.Context, until time.Time) ([]models.Trip, error) {
	var rows []tripRow
	err := r.db.Select(ctx, &rows, `
        SELECT * FROM trips
        WHERE status = $1 AND departure_time <= $2
        ORDER BY departure_time ASC
    `, string(models.TripScheduled), until)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trip, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *TripRepo) ListScheduledByIDs(ctx context.Context, ids []string) ([]models.Trip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []tripRow
	err := r.db.Select(ctx, &rows, `
        SELECT * FROM trips WHERE status = $1 AND id = ANY($2)
    `, string(models.TripScheduled), ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trip, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
