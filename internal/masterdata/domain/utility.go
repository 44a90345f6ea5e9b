package masterdata

import (
	"context"
	"errors"
	"time"
)

// Utility is the reference-data record for a utility company whose tariffs
// and holiday calendars the billing core prices against.
type Utility struct {
	ID        string
	TenantID  string
	Name      string
	Timezone  string
	Region    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks utility invariants.
func (u Utility) Validate() error {
	if u.ID == "" {
		return errors.New("utility: empty id")
	}
	if u.TenantID == "" {
		return errors.New("utility: empty tenant id")
	}
	if u.Name == "" {
		return errors.New("utility: empty name")
	}
	if u.Timezone == "" {
		return errors.New("utility: empty timezone")
	}
	return nil
}

// UtilityRepository manages utility persistence.
type UtilityRepository interface {
	Get(ctx context.Context, id string) (*Utility, error)
	Save(ctx context.Context, utility *Utility) error
}
