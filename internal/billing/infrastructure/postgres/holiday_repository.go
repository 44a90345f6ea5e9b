package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"microgrid-cloud/internal/billing/domain"
)

const defaultHolidayTable = "billing_holidays"

// HolidayRepository is a Postgres implementation of domain.HolidayRepository.
type HolidayRepository struct {
	db    *sql.DB
	table string
}

// WithHolidayTable overrides the default table name.
func WithHolidayTable(table string) func(*HolidayRepository) {
	return func(r *HolidayRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewHolidayRepository constructs a repository with defaults.
func NewHolidayRepository(db *sql.DB, opts ...func(*HolidayRepository)) *HolidayRepository {
	r := &HolidayRepository{db: db, table: defaultHolidayTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListByUtility returns every holiday registered for utility.
func (r *HolidayRepository) ListByUtility(ctx context.Context, utility string) ([]domain.Holiday, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("holiday repo: nil db")
	}
	query := fmt.Sprintf(`SELECT name, observed_date FROM %s WHERE utility = $1 ORDER BY observed_date`, r.table)
	rows, err := r.db.QueryContext(ctx, query, utility)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Holiday
	for rows.Next() {
		var name string
		var observed time.Time
		if err := rows.Scan(&name, &observed); err != nil {
			return nil, err
		}
		out = append(out, domain.Holiday{
			Utility: utility,
			Name:    name,
			Date:    domain.CivilDate{Year: observed.Year(), Month: observed.Month(), Day: observed.Day()},
		})
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a holiday record.
func (r *HolidayRepository) Upsert(ctx context.Context, holiday domain.Holiday) error {
	if r == nil || r.db == nil {
		return errors.New("holiday repo: nil db")
	}
	observed := time.Date(holiday.Date.Year, holiday.Date.Month, holiday.Date.Day, 0, 0, 0, 0, time.UTC)
	query := fmt.Sprintf(`
INSERT INTO %s (utility, name, observed_date)
VALUES ($1, $2, $3)
ON CONFLICT (utility, name, observed_date) DO NOTHING`, r.table)
	_, err := r.db.ExecContext(ctx, query, holiday.Utility, holiday.Name, observed)
	return err
}
