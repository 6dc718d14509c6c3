package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs statements.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const createTicksTable = `
CREATE TABLE IF NOT EXISTS price_ticks (
	ts          TIMESTAMPTZ NOT NULL,
	instrument  TEXT        NOT NULL,
	source      TEXT        NOT NULL,
	bid         NUMERIC,
	ask         NUMERIC,
	mid         NUMERIC,
	spread_pips NUMERIC,
	tradeable   BOOLEAN     NOT NULL DEFAULT TRUE,
	UNIQUE (instrument, source, ts)
)`

const createHypertable = `SELECT create_hypertable('price_ticks', 'ts', if_not_exists => TRUE)`

// EnsureSchema creates the ticks table. Converting it to a hypertable is
// attempted and skipped when TimescaleDB is not installed.
func EnsureSchema(ctx context.Context, db Execer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := db.Exec(ctx, createTicksTable); err != nil {
		return fmt.Errorf("create price_ticks: %w", err)
	}

	if _, err := db.Exec(ctx, createHypertable); err != nil {
		logger.Info("price_ticks is a plain table (timescaledb unavailable)", "error", err)
	}

	return nil
}
