package auth

import (
	"context"
	"database/sql"
	"errors"

	masterdatarepo "microgrid-cloud/internal/masterdata/infrastructure/postgres"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// UtilityTenantChecker validates utility tenant ownership, the billing
// core's analogue of the teacher's station-tenant ownership check.
type UtilityTenantChecker interface {
	EnsureUtilityTenant(ctx context.Context, tenantID, utilityID string) error
}

// UtilityChecker checks utility ownership using masterdata.
type UtilityChecker struct {
	repo *masterdatarepo.UtilityRepository
}

// NewUtilityChecker constructs a UtilityChecker.
func NewUtilityChecker(db *sql.DB) *UtilityChecker {
	if db == nil {
		return nil
	}
	return &UtilityChecker{repo: masterdatarepo.NewUtilityRepository(db)}
}

// EnsureUtilityTenant verifies a utility belongs to tenant.
func (c *UtilityChecker) EnsureUtilityTenant(ctx context.Context, tenantID, utilityID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || utilityID == "" {
		return nil
	}
	utility, err := c.repo.Get(ctx, utilityID)
	if err != nil {
		return err
	}
	if utility == nil {
		return ErrNotFound
	}
	if utility.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
