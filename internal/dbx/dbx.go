// Package dbx opens the connections this service needs, generalizing
// illenko-transactional-outbox/payments/db.go's getPool/getConn/
// runMigrations trio from hardcoded local DSNs to the configured
// DATABASE_DSN, and swapping goose's bundled-directory migration source
// for an embedded one so the binary ships its own schema.
package dbx

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/migrations"
)

// OpenPool opens the pgxpool used by the poller and sender loops for all
// query and transaction work.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Migrate runs every pending goose migration embedded under
// internal/migrations/sql against dsn using a database/sql handle, since
// goose drives migrations through database/sql rather than pgx directly.
func Migrate(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "sql")
}
