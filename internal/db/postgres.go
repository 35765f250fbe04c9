package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
    id          BIGSERIAL PRIMARY KEY,
    method      TEXT NOT NULL,
    url         TEXT NOT NULL,
    remote_addr TEXT NOT NULL,
    body        TEXT NOT NULL,
    body_size   BIGINT NOT NULL,
    rendered    TEXT NOT NULL DEFAULT '',
    status_code INT NOT NULL,
    parse_error TEXT NOT NULL DEFAULT '',
    received_at TIMESTAMPTZ NOT NULL
)`

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &DB{Pool: pool}, nil
}

// EnsureSchema creates the observations table when it is missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, schema)
	return err
}

func (db *DB) Close() {
	db.Pool.Close()
}
