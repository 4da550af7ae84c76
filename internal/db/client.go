package db

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Connect opens a pgx pool for the given DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Database, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewDatabase(pool), nil
}

func (db *Database) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

func (db *Database) Close() { db.pool.Close() }
