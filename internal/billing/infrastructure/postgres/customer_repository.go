package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"microgrid-cloud/internal/billing/domain"
)

const defaultCustomerTable = "billing_customers"

// CustomerRepository is a Postgres implementation of
// domain.CustomerRepository.
type CustomerRepository struct {
	db    *sql.DB
	table string
}

// WithCustomerTable overrides the default table name.
func WithCustomerTable(table string) func(*CustomerRepository) {
	return func(r *CustomerRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewCustomerRepository constructs a repository with defaults.
func NewCustomerRepository(db *sql.DB, opts ...func(*CustomerRepository)) *CustomerRepository {
	r := &CustomerRepository{db: db, table: defaultCustomerTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindByName loads a customer profile by name.
func (r *CustomerRepository) FindByName(ctx context.Context, name string) (*domain.CustomerProfile, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("customer repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT name, timezone, billing_interval_minutes, billing_day
FROM %s WHERE name = $1 LIMIT 1`, r.table)
	var p domain.CustomerProfile
	row := r.db.QueryRowContext(ctx, query, name)
	if err := row.Scan(&p.Name, &p.Timezone, &p.BillingIntervalMinutes, &p.BillingDay); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// TariffAssignment returns the (utility, tariff name) assigned to a customer.
func (r *CustomerRepository) TariffAssignment(ctx context.Context, customerName string) (string, string, error) {
	if r == nil || r.db == nil {
		return "", "", errors.New("customer repo: nil db")
	}
	query := fmt.Sprintf(`SELECT utility, tariff_name FROM %s WHERE name = $1 LIMIT 1`, r.table)
	var utility, tariffName string
	row := r.db.QueryRowContext(ctx, query, customerName)
	if err := row.Scan(&utility, &tariffName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", domain.ErrMissingData
		}
		return "", "", err
	}
	return utility, tariffName, nil
}

// Upsert inserts or replaces a customer profile and tariff assignment.
func (r *CustomerRepository) Upsert(ctx context.Context, profile domain.CustomerProfile, utility, tariffName string) error {
	if r == nil || r.db == nil {
		return errors.New("customer repo: nil db")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (name, timezone, billing_interval_minutes, billing_day, utility, tariff_name, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (name)
DO UPDATE SET
	timezone = EXCLUDED.timezone,
	billing_interval_minutes = EXCLUDED.billing_interval_minutes,
	billing_day = EXCLUDED.billing_day,
	utility = EXCLUDED.utility,
	tariff_name = EXCLUDED.tariff_name,
	updated_at = NOW()`, r.table)
	_, err := r.db.ExecContext(ctx, query, profile.Name, profile.Timezone, profile.BillingIntervalMinutes, profile.BillingDay, utility, tariffName)
	return err
}
