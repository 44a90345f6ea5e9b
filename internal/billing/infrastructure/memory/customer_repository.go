package memory

import (
	"context"
	"sync"

	"microgrid-cloud/internal/billing/domain"
)

type customerRecord struct {
	profile    domain.CustomerProfile
	utility    string
	tariffName string
}

// CustomerRepository is an in-memory implementation of
// domain.CustomerRepository, keyed by customer name.
type CustomerRepository struct {
	mu   sync.RWMutex
	data map[string]customerRecord
}

// NewCustomerRepository constructs an empty repository.
func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{data: make(map[string]customerRecord)}
}

// FindByName returns the customer profile, or nil if not found.
func (r *CustomerRepository) FindByName(ctx context.Context, name string) (*domain.CustomerProfile, error) {
	_ = ctx
	r.mu.RLock()
	rec, ok := r.data[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	clone := rec.profile
	return &clone, nil
}

// TariffAssignment returns the (utility, tariff name) assigned to a customer.
func (r *CustomerRepository) TariffAssignment(ctx context.Context, customerName string) (string, string, error) {
	_ = ctx
	r.mu.RLock()
	rec, ok := r.data[customerName]
	r.mu.RUnlock()
	if !ok {
		return "", "", domain.ErrMissingData
	}
	return rec.utility, rec.tariffName, nil
}

// Upsert stores or replaces a customer profile and tariff assignment.
func (r *CustomerRepository) Upsert(ctx context.Context, profile domain.CustomerProfile, utility, tariffName string) error {
	_ = ctx
	if err := profile.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[profile.Name] = customerRecord{profile: profile, utility: utility, tariffName: tariffName}
	r.mu.Unlock()
	return nil
}
