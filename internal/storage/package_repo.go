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

type PackageRepo struct {
	db db.DB
}

func NewPackageRepo(database db.DB) *PackageRepo { return &PackageRepo{db: database} }

func (r *PackageRepo) Create(ctx context.Context, p *models.Package) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO packages (
            id, customer_id, pickup_lat, pickup_lon, delivery_lat, delivery_lon,
            pickup_address, delivery_address, size_tier, price_offered, weight_kg,
            status, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    `, p.ID, p.CustomerID, p.Pickup.Lat, p.Pickup.Lon, p.Delivery.Lat, p.Delivery.Lon,
		p.PickupAddress, p.DeliveryAddress, string(p.SizeTier), p.PriceOffered, p.WeightKg,
		string(p.Status), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *PackageRepo) GetByID(ctx context.Context, id string) (*models.Package, error) {
	var row packageRow
	err := r.db.Get(ctx, &row, "SELECT * FROM packages WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodePackageNotFound, "package not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (r *PackageRepo) GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.Package, error) {
	var row packageRow
	err := tx.Get(ctx, &row, "SELECT * FROM packages WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodePackageNotFound, "package not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (r *PackageRepo) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.PackageStatus, at time.Time) error {
	tag, err := tx.Exec(ctx, "UPDATE packages SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodePackageNotFound, "package not found")
	}
	return nil
}

// ListOpen returns every package still open for bids, oldest first so aging
// packages get matched before fresh ones.
func (r *PackageRepo) ListOpen(ctx context.Context) ([]models.Package, error) {
	var rows []packageRow
	err := r.db.Select(ctx, &rows, `
        SELECT * FROM packages WHERE status = $1 ORDER BY created_at ASC
    `, string(models.PackagePending))
	if err != nil {
		return nil, err
	}
	out := make([]models.Package, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
