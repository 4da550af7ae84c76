package storage

import (
	"context"

	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/models"
)

// LedgerRepo records settled commission transactions. Rows are append-only.
type LedgerRepo struct {
	db db.DB
}

func NewLedgerRepo(database db.DB) *LedgerRepo { return &LedgerRepo{db: database} }

func (r *LedgerRepo) CreateTx(ctx context.Context, tx db.Tx, t *models.CommissionTransaction) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO commission_transactions (
            id, driver_id, reservation_id, amount, status, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6)
    `, t.ID, t.DriverID, t.ReservationID, t.Amount, t.Status, t.CreatedAt)
	return err
}

func (r *LedgerRepo) ListByDriver(ctx context.Context, driverID string, limit int) ([]models.CommissionTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.CommissionTransaction
	err := r.db.Select(ctx, &rows, `
        SELECT id, driver_id, reservation_id, amount, status, created_at
        FROM commission_transactions
        WHERE driver_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, driverID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
