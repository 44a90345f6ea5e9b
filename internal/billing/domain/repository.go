package domain

import (
	"context"
	"time"
)

// TariffRepository loads and persists utility tariffs, per §3/§6.
type TariffRepository interface {
	FindByUtilityName(ctx context.Context, utility, name string) (*Tariff, error)
	Upsert(ctx context.Context, tariff Tariff) error
	ListByUtility(ctx context.Context, utility string) ([]Tariff, error)
}

// CustomerRepository loads customer billing profiles and their tariff
// assignment.
type CustomerRepository interface {
	FindByName(ctx context.Context, name string) (*CustomerProfile, error)
	TariffAssignment(ctx context.Context, customerName string) (utility, tariffName string, err error)
	Upsert(ctx context.Context, profile CustomerProfile, utility, tariffName string) error
}

// HolidayRepository loads the holiday calendar for a utility.
type HolidayRepository interface {
	ListByUtility(ctx context.Context, utility string) ([]Holiday, error)
	Upsert(ctx context.Context, holiday Holiday) error
}

// UsageRepository loads raw usage intervals for a customer over a UTC range.
type UsageRepository interface {
	Find(ctx context.Context, customerName string, fromUTC, toUTC time.Time) ([]UsageInterval, error)
}

// BillSnapshotRepository persists the computed result of a billing run so it
// can be retrieved later (§6 "fetch a previously computed bill") or diffed
// by the reconciliation tool (§12).
type BillSnapshotRepository interface {
	Save(ctx context.Context, customerName string, computation BillComputation) error
	FindLatest(ctx context.Context, customerName string, month BillingMonthKey) (*BillResult, error)
}
