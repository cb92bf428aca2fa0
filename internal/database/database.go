// Package database wires up the Postgres connection pool (pgx) behind
// an *sqlx.DB handle, so the rest of the codebase gets sqlx's
// struct-scanning convenience over pgx's connection management.
package database

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Open establishes a *sqlx.DB backed by pgx's database/sql driver and
// verifies connectivity with a ping.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "database: opening connection")
	}
	db := sqlx.NewDb(sqlDB, "pgx")
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "database: pinging connection")
	}
	return db, nil
}
