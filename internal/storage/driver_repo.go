package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/models"
)

type DriverRepo struct {
	db db.DB
}

func NewDriverRepo(database db.DB) *DriverRepo { return &DriverRepo{db: database} }

func (r *DriverRepo) GetProfile(ctx context.Context, userID string) (*models.DriverProfile, error) {
	var row driverRow
	err := r.db.Get(ctx, &row, "SELECT * FROM driver_profiles WHERE user_id = $1", userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeDriverNotFound, "driver profile not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (r *DriverRepo) Upsert(ctx context.Context, p *models.DriverProfile) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO driver_profiles (user_id, verified, rating, total_deliveries)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id) DO UPDATE
        SET verified = EXCLUDED.verified,
            rating = EXCLUDED.rating,
            total_deliveries = EXCLUDED.total_deliveries
    `, p.UserID, p.Verified, p.Rating, p.TotalDeliveries)
	return err
}
