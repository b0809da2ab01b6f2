package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	"github.com/jmoiron/sqlx"
)

// LedgerRepository stores ledger entries in one table. Writes compare the
// version column so concurrent writers from other processes cannot
// overwrite each other.
type LedgerRepository struct{ db *sqlx.DB }

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository { return &LedgerRepository{db: db} }

type ledgerRow struct {
	ID                string `db:"id"`
	ProductID         string `db:"product_id"`
	VariantSKU        string `db:"variant_sku"`
	Color             string `db:"color"`
	SizesJSON         string `db:"sizes_json"`
	TotalQuantity     int    `db:"total_quantity"`
	ReservedQuantity  int    `db:"reserved_quantity"`
	AvailableQuantity int    `db:"available_quantity"`
	Version           int64  `db:"version"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

const selectColumns = `id, product_id, variant_sku, color, sizes_json, total_quantity,
	reserved_quantity, available_quantity, version, created_at, updated_at`

func (r *LedgerRepository) Get(ctx context.Context, key domain.Key) (*domain.Entry, error) {
	var row ledgerRow
	err := r.db.GetContext(ctx, &row, `SELECT `+selectColumns+`
		FROM stock_ledger WHERE product_id = ? AND variant_sku = ?`, key.ProductID, key.VariantSKU)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get %s: %w", key, err)
	}
	return row.toEntry()
}

func (r *LedgerRepository) ListByProduct(ctx context.Context, productID string) ([]*domain.Entry, error) {
	var rows []ledgerRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+selectColumns+`
		FROM stock_ledger WHERE product_id = ? ORDER BY variant_sku`, productID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list %s: %w", productID, err)
	}
	out := make([]*domain.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *LedgerRepository) Create(ctx context.Context, e *domain.Entry) error {
	row, err := fromEntry(e)
	if err != nil {
		return err
	}
	row.Version = 1
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO stock_ledger(id, product_id, variant_sku, color, sizes_json, total_quantity,
			reserved_quantity, available_quantity, version, created_at, updated_at)
		VALUES (:id, :product_id, :variant_sku, :color, :sizes_json, :total_quantity,
			:reserved_quantity, :available_quantity, :version, :created_at, :updated_at)
		ON CONFLICT DO NOTHING`, row)
	if err != nil {
		return fmt.Errorf("sqlstore: create %s: %w", e.Key(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadyExists
	}
	e.Version = 1
	return nil
}

func (r *LedgerRepository) Update(ctx context.Context, e *domain.Entry, expectedVersion int64) error {
	row, err := fromEntry(e)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE stock_ledger
		SET color = ?, sizes_json = ?, total_quantity = ?, reserved_quantity = ?,
			available_quantity = ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND variant_sku = ? AND version = ?`,
		row.Color, row.SizesJSON, row.TotalQuantity, row.ReservedQuantity,
		row.AvailableQuantity, row.UpdatedAt,
		row.ProductID, row.VariantSKU, expectedVersion)
	if err != nil {
		return fmt.Errorf("sqlstore: update %s: %w", e.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: update %s: %w", e.Key(), err)
	}
	if n == 0 {
		if _, getErr := r.Get(ctx, e.Key()); errors.Is(getErr, domain.ErrVariantNotFound) {
			return domain.ErrVariantNotFound
		}
		return domain.ErrVersionConflict
	}
	e.Version = expectedVersion + 1
	return nil
}

func (r *LedgerRepository) DeleteByProduct(ctx context.Context, productID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stock_ledger WHERE product_id = ?`, productID)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete %s: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete %s: %w", productID, err)
	}
	return int(n), nil
}

func fromEntry(e *domain.Entry) (ledgerRow, error) {
	sizes := e.Sizes
	if sizes == nil {
		sizes = []domain.SizeStock{}
	}
	b, err := json.Marshal(sizes)
	if err != nil {
		return ledgerRow{}, fmt.Errorf("sqlstore: encode sizes: %w", err)
	}
	return ledgerRow{
		ID:                e.ID,
		ProductID:         e.ProductID,
		VariantSKU:        e.VariantSKU,
		Color:             e.Color,
		SizesJSON:         string(b),
		TotalQuantity:     e.TotalQuantity,
		ReservedQuantity:  e.ReservedQuantity,
		AvailableQuantity: e.AvailableQuantity,
		Version:           e.Version,
		CreatedAt:         e.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (row ledgerRow) toEntry() (*domain.Entry, error) {
	var sizes []domain.SizeStock
	if err := json.Unmarshal([]byte(row.SizesJSON), &sizes); err != nil {
		return nil, fmt.Errorf("sqlstore: decode sizes of %s: %w", row.ID, err)
	}
	created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: created_at of %s: %w", row.ID, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: updated_at of %s: %w", row.ID, err)
	}
	return &domain.Entry{
		ID:                row.ID,
		ProductID:         row.ProductID,
		VariantSKU:        row.VariantSKU,
		Color:             row.Color,
		Sizes:             sizes,
		TotalQuantity:     row.TotalQuantity,
		ReservedQuantity:  row.ReservedQuantity,
		AvailableQuantity: row.AvailableQuantity,
		Version:           row.Version,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}
