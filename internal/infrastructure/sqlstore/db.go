package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS stock_ledger(
  id                 TEXT PRIMARY KEY,
  product_id         TEXT NOT NULL,
  variant_sku        TEXT NOT NULL,
  color              TEXT NOT NULL DEFAULT '',
  sizes_json         TEXT NOT NULL DEFAULT '[]',
  total_quantity     INTEGER NOT NULL DEFAULT 0 CHECK (total_quantity >= 0),
  reserved_quantity  INTEGER NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0),
  available_quantity INTEGER NOT NULL DEFAULT 0 CHECK (available_quantity >= 0),
  version            INTEGER NOT NULL DEFAULT 1,
  created_at         TEXT NOT NULL,
  updated_at         TEXT NOT NULL,
  UNIQUE(product_id, variant_sku)
);
CREATE INDEX IF NOT EXISTS idx_stock_ledger_product ON stock_ledger(product_id);
`

// Open connects to the sqlite database at dsn and ensures the schema.
// ":memory:" databases are pinned to one connection so every query sees the
// same data.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: schema: %w", err)
	}
	return db, nil
}
