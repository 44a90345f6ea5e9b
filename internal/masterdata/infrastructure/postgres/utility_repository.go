package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "microgrid-cloud/internal/masterdata/domain"
)

const defaultUtilitiesTable = "utilities"

// UtilityRepository is a Postgres implementation for utilities.
type UtilityRepository struct {
	db    *sql.DB
	table string
}

// NewUtilityRepository constructs a repository.
func NewUtilityRepository(db *sql.DB, opts ...UtilityOption) *UtilityRepository {
	repo := &UtilityRepository{db: db, table: defaultUtilitiesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// UtilityOption configures the repository.
type UtilityOption func(*UtilityRepository)

// WithUtilityTable overrides the default table name.
func WithUtilityTable(table string) UtilityOption {
	return func(repo *UtilityRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a utility by id.
func (r *UtilityRepository) Get(ctx context.Context, id string) (*masterdata.Utility, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("utility repo: nil db")
	}
	if id == "" {
		return nil, errors.New("utility repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, timezone, region, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var utility masterdata.Utility
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&utility.ID,
		&utility.TenantID,
		&utility.Name,
		&utility.Timezone,
		&utility.Region,
		&utility.CreatedAt,
		&utility.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	utility.CreatedAt = utility.CreatedAt.UTC()
	utility.UpdatedAt = utility.UpdatedAt.UTC()
	return &utility, nil
}

// Save upserts a utility.
func (r *UtilityRepository) Save(ctx context.Context, utility *masterdata.Utility) error {
	if r == nil || r.db == nil {
		return errors.New("utility repo: nil db")
	}
	if utility == nil {
		return errors.New("utility repo: nil utility")
	}
	if err := utility.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	timezone,
	region
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	name = EXCLUDED.name,
	timezone = EXCLUDED.timezone,
	region = EXCLUDED.region,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		utility.ID,
		utility.TenantID,
		utility.Name,
		utility.Timezone,
		utility.Region,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if utility.CreatedAt.IsZero() {
		utility.CreatedAt = now
	}
	utility.UpdatedAt = now
	return nil
}
