package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/bids"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/models"
)

type BidRepo struct {
	db db.DB
}

func NewBidRepo(database db.DB) *BidRepo { return &BidRepo{db: database} }

func (r *BidRepo) Create(ctx context.Context, b *models.Bid) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO bids (
            id, package_id, driver_id, trip_id, amount, message, status,
            commission_amount, driver_earnings, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, b.ID, b.PackageID, b.DriverID, b.TripID, b.Amount, b.Message, string(b.Status),
		b.CommissionAmount, b.DriverEarnings, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *BidRepo) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	var row bidRow
	err := r.db.Get(ctx, &row, "SELECT * FROM bids WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeBidNotFound, "bid not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (r *BidRepo) GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.Bid, error) {
	var row bidRow
	err := tx.Get(ctx, &row, "SELECT * FROM bids WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeBidNotFound, "bid not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

// List applies every non-nil filter as a conjunct. Results come back newest
// first.
func (r *BidRepo) List(ctx context.Context, f bids.Filters) ([]models.Bid, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(expr string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if f.PackageID != nil {
		add("package_id = $%d", *f.PackageID)
	}
	if f.DriverID != nil {
		add("driver_id = $%d", *f.DriverID)
	}
	if f.TripID != nil {
		add("trip_id = $%d", *f.TripID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.MinAmount != nil {
		add("amount >= $%d", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("amount <= $%d", *f.MaxAmount)
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= $%d", *f.EndDate)
	}

	query := "SELECT * FROM bids"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	args = append(args, f.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var rows []bidRow
	if err := r.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]models.Bid, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *BidRepo) Update(ctx context.Context, b *models.Bid) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE bids
        SET amount = $1, message = $2, status = $3,
            commission_amount = $4, driver_earnings = $5, updated_at = $6
        WHERE id = $7
    `, b.Amount, b.Message, string(b.Status), b.CommissionAmount, b.DriverEarnings, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodeBidNotFound, "bid not found")
	}
	return nil
}

func (r *BidRepo) UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.BidStatus, at time.Time) error {
	tag, err := tx.Exec(ctx, "UPDATE bids SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodeBidNotFound, "bid not found")
	}
	return nil
}

func (r *BidRepo) RejectSiblingsTx(ctx context.Context, tx db.Tx, packageID, exceptBidID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
        UPDATE bids SET status = $1, updated_at = $2
        WHERE package_id = $3 AND id <> $4 AND status = $5
    `, string(models.BidRejected), at, packageID, exceptBidID, string(models.BidPending))
	return err
}

func (r *BidRepo) HasPending(ctx context.Context, packageID, driverID string) (bool, error) {
	var exists bool
	err := r.db.Get(ctx, &exists, `
        SELECT EXISTS (
            SELECT 1 FROM bids
            WHERE package_id = $1 AND driver_id = $2 AND status = $3
        )
    `, packageID, driverID, string(models.BidPending))
	if err != nil {
		return false, err
	}
	return exists, nil
}
