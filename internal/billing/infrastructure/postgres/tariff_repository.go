package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"microgrid-cloud/internal/billing/domain"
)

const defaultTariffTable = "billing_tariffs"

// TariffRepository is a Postgres implementation of domain.TariffRepository.
// Charge and rule structures are stored as a JSONB document alongside the
// (utility, name) identity columns, following the envelope/audit packages'
// json.RawMessage-payload convention rather than normalising every charge
// family into its own table.
type TariffRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures a repository, mirroring the settlement
// package's functional-options pattern.
type RepositoryOption func(*TariffRepository)

// WithTariffTable overrides the default table name.
func WithTariffTable(table string) RepositoryOption {
	return func(r *TariffRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewTariffRepository constructs a repository with defaults.
func NewTariffRepository(db *sql.DB, opts ...RepositoryOption) *TariffRepository {
	r := &TariffRepository{db: db, table: defaultTariffTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type tariffDocument struct {
	EnergyCharges   []domain.EnergyCharge   `json:"energy_charges"`
	DemandCharges   []domain.DemandCharge   `json:"demand_charges"`
	CustomerCharges []domain.CustomerCharge `json:"customer_charges"`
}

// FindByUtilityName loads a tariff by its natural key.
func (r *TariffRepository) FindByUtilityName(ctx context.Context, utility, name string) (*domain.Tariff, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tariff repo: nil db")
	}
	query := fmt.Sprintf(`SELECT document FROM %s WHERE utility = $1 AND name = $2 LIMIT 1`, r.table)
	var raw []byte
	row := r.db.QueryRowContext(ctx, query, utility, name)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var doc tariffDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	tariff := &domain.Tariff{
		Utility:         utility,
		Name:            name,
		EnergyCharges:   doc.EnergyCharges,
		DemandCharges:   doc.DemandCharges,
		CustomerCharges: doc.CustomerCharges,
	}
	return tariff, nil
}

// Upsert inserts or replaces a tariff document.
func (r *TariffRepository) Upsert(ctx context.Context, tariff domain.Tariff) error {
	if r == nil || r.db == nil {
		return errors.New("tariff repo: nil db")
	}
	if err := tariff.Validate(); err != nil {
		return err
	}
	doc := tariffDocument{
		EnergyCharges:   tariff.EnergyCharges,
		DemandCharges:   tariff.DemandCharges,
		CustomerCharges: tariff.CustomerCharges,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (utility, name, document, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (utility, name)
DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`, r.table)
	_, err = r.db.ExecContext(ctx, query, tariff.Utility, tariff.Name, raw)
	return err
}

// ListByUtility returns every tariff registered for utility.
func (r *TariffRepository) ListByUtility(ctx context.Context, utility string) ([]domain.Tariff, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tariff repo: nil db")
	}
	query := fmt.Sprintf(`SELECT name, document FROM %s WHERE utility = $1 ORDER BY name`, r.table)
	rows, err := r.db.QueryContext(ctx, query, utility)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tariff
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var doc tariffDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		out = append(out, domain.Tariff{
			Utility:         utility,
			Name:            name,
			EnergyCharges:   doc.EnergyCharges,
			DemandCharges:   doc.DemandCharges,
			CustomerCharges: doc.CustomerCharges,
		})
	}
	return out, rows.Err()
}
