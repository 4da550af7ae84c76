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

type WalletRepo struct {
	db db.DB
}

func NewWalletRepo(database db.DB) *WalletRepo { return &WalletRepo{db: database} }

func (r *WalletRepo) Get(ctx context.Context, userID string) (*models.Wallet, error) {
	var row walletRow
	err := r.db.Get(ctx, &row, "SELECT * FROM wallets WHERE user_id = $1", userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(apperr.CodeWalletNotFound, "wallet not found")
		}
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

// ReserveTx bumps the reserved balance only when the new total still fits
// inside the available balance. The guard lives in the WHERE clause so the
// check and the increment are a single atomic statement; zero rows affected
// means the wallet could not cover the hold.
func (r *WalletRepo) ReserveTx(ctx context.Context, tx db.Tx, userID string, amount float64) (bool, error) {
	tag, err := tx.Exec(ctx, `
        UPDATE wallets
        SET reserved_balance = reserved_balance + $1, updated_at = $2
        WHERE user_id = $3 AND reserved_balance + $1 <= available_balance
    `, amount, time.Now().UTC(), userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *WalletRepo) UnreserveTx(ctx context.Context, tx db.Tx, userID string, amount float64) error {
	tag, err := tx.Exec(ctx, `
        UPDATE wallets
        SET reserved_balance = GREATEST(reserved_balance - $1, 0), updated_at = $2
        WHERE user_id = $3
    `, amount, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(apperr.CodeWalletNotFound, "wallet not found")
	}
	return nil
}

// Credit tops up the available balance, creating the wallet on first use.
func (r *WalletRepo) Credit(ctx context.Context, userID string, amount float64) (*models.Wallet, error) {
	var row walletRow
	err := r.db.Get(ctx, &row, `
        INSERT INTO wallets (user_id, available_balance, reserved_balance, updated_at)
        VALUES ($1, $2, 0, $3)
        ON CONFLICT (user_id) DO UPDATE
        SET available_balance = wallets.available_balance + EXCLUDED.available_balance,
            updated_at = EXCLUDED.updated_at
        RETURNING *
    `, userID, amount, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}
