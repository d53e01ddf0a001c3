package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the tables the writer inserts into. Unique keys make
// replayed events no-ops under ON CONFLICT DO NOTHING.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
		ticker       TEXT        NOT NULL,
		seq          BIGINT      NOT NULL,
		sid          BIGINT      NOT NULL,
		received_at  TIMESTAMPTZ NOT NULL,
		yes_levels   JSONB       NOT NULL,
		no_levels    JSONB       NOT NULL,
		best_yes_bid INTEGER     NOT NULL,
		best_yes_ask INTEGER     NOT NULL,
		UNIQUE (ticker, sid, seq, received_at)
	)`,
	`CREATE TABLE IF NOT EXISTS orderbook_deltas (
		ticker      TEXT        NOT NULL,
		seq         BIGINT      NOT NULL,
		sid         BIGINT      NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		side        TEXT        NOT NULL,
		price       INTEGER     NOT NULL,
		delta       INTEGER     NOT NULL,
		UNIQUE (ticker, sid, seq, received_at)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		trade_id    TEXT PRIMARY KEY,
		ticker      TEXT        NOT NULL,
		yes_price   INTEGER     NOT NULL,
		no_price    INTEGER     NOT NULL,
		count       INTEGER     NOT NULL,
		taker_side  TEXT        NOT NULL,
		ts          BIGINT      NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fills (
		trade_id  TEXT    NOT NULL,
		order_id  TEXT    NOT NULL,
		ticker    TEXT    NOT NULL,
		side      TEXT    NOT NULL,
		action    TEXT    NOT NULL,
		is_taker  BOOLEAN NOT NULL,
		yes_price INTEGER NOT NULL,
		count     INTEGER NOT NULL,
		ts        BIGINT  NOT NULL,
		PRIMARY KEY (trade_id, order_id)
	)`,
	`CREATE INDEX IF NOT EXISTS orderbook_deltas_ticker_received ON orderbook_deltas (ticker, received_at)`,
	`CREATE INDEX IF NOT EXISTS trades_ticker_ts ON trades (ticker, ts)`,
}

// Execer runs a statement. *pgxpool.Pool implements it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
