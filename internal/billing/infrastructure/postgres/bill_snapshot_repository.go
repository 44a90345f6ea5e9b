package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"microgrid-cloud/internal/billing/domain"
)

const defaultSnapshotTable = "billing_snapshots"

// BillSnapshotRepository is a Postgres implementation of
// domain.BillSnapshotRepository. Each row is one (customer, billing month)
// result, with its line items stored as a JSONB document.
type BillSnapshotRepository struct {
	db    *sql.DB
	table string
}

// WithSnapshotTable overrides the default table name.
func WithSnapshotTable(table string) func(*BillSnapshotRepository) {
	return func(r *BillSnapshotRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewBillSnapshotRepository constructs a repository with defaults.
func NewBillSnapshotRepository(db *sql.DB, opts ...func(*BillSnapshotRepository)) *BillSnapshotRepository {
	r := &BillSnapshotRepository{db: db, table: defaultSnapshotTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save upserts every per-month result of a computation.
func (r *BillSnapshotRepository) Save(ctx context.Context, customerName string, computation domain.BillComputation) error {
	if r == nil || r.db == nil {
		return errors.New("bill snapshot repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (customer_name, billing_year, billing_month, total_usd, line_items, computed_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (customer_name, billing_year, billing_month)
DO UPDATE SET total_usd = EXCLUDED.total_usd, line_items = EXCLUDED.line_items, computed_at = NOW()`, r.table)

	for _, month := range computation.Months {
		raw, err := json.Marshal(month.LineItems)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query, customerName, month.Month.Year, int(month.Month.Month), month.TotalUSD, raw); err != nil {
			return err
		}
	}
	return nil
}

// FindLatest returns the stored result for customerName and month, or nil.
func (r *BillSnapshotRepository) FindLatest(ctx context.Context, customerName string, month domain.BillingMonthKey) (*domain.BillResult, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("bill snapshot repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT total_usd, line_items FROM %s
WHERE customer_name = $1 AND billing_year = $2 AND billing_month = $3 LIMIT 1`, r.table)
	var total decimal.Decimal
	var itemsRaw []byte
	row := r.db.QueryRowContext(ctx, query, customerName, month.Year, int(month.Month))
	if err := row.Scan(&total, &itemsRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var lineItems map[string]decimal.Decimal
	if err := json.Unmarshal(itemsRaw, &lineItems); err != nil {
		return nil, err
	}
	return &domain.BillResult{Month: month, LineItems: lineItems, TotalUSD: total}, nil
}
