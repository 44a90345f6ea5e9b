package memory

import (
	"context"
	"sync"

	"microgrid-cloud/internal/billing/domain"
)

// HolidayRepository is an in-memory implementation of
// domain.HolidayRepository, keyed by utility.
type HolidayRepository struct {
	mu   sync.RWMutex
	data map[string][]domain.Holiday
}

// NewHolidayRepository constructs an empty repository.
func NewHolidayRepository() *HolidayRepository {
	return &HolidayRepository{data: make(map[string][]domain.Holiday)}
}

// ListByUtility returns every holiday registered for utility.
func (r *HolidayRepository) ListByUtility(ctx context.Context, utility string) ([]domain.Holiday, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Holiday, len(r.data[utility]))
	copy(out, r.data[utility])
	return out, nil
}

// Upsert adds or replaces a holiday (matched by utility, name, date).
func (r *HolidayRepository) Upsert(ctx context.Context, holiday domain.Holiday) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.data[holiday.Utility]
	for i, h := range list {
		if h.Date == holiday.Date && h.Name == holiday.Name {
			list[i] = holiday
			return nil
		}
	}
	r.data[holiday.Utility] = append(list, holiday)
	return nil
}
