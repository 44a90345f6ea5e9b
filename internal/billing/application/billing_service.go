package application

import (
	"context"
	"errors"
	"time"

	"microgrid-cloud/internal/audit"
	"microgrid-cloud/internal/auth"
	"microgrid-cloud/internal/billing/domain"
	"microgrid-cloud/internal/observability/metrics"
)

// EventPublisher is the subset of eventing.Publisher's surface the billing
// service depends on, kept as a local interface so this package does not
// have to import the eventing package's outbox/dispatcher wiring directly.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// BillComputed is published once a computation completes, so downstream
// consumers (statement export, notifications) can react without polling,
// per SPEC_FULL.md §13.
type BillComputed struct {
	CustomerName  string          `json:"customer_name"`
	Utility       string          `json:"utility"`
	Months        []string        `json:"months"`
	GrandTotalUSD string          `json:"grand_total_usd"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// BillingService orchestrates a billing computation end to end: it resolves
// the customer's tariff assignment, loads usage and holidays, calls
// domain.ComputeBill, persists the result, and publishes BillComputed. It
// mirrors the settlement package's StatementService shape: a thin
// application-layer façade over injected repositories with no business
// logic of its own.
type BillingService struct {
	tariffs     domain.TariffRepository
	customers   domain.CustomerRepository
	holidays    domain.HolidayRepository
	usage       domain.UsageRepository
	snapshots   domain.BillSnapshotRepository
	events      EventPublisher
	auditLogger audit.Logger
}

// NewBillingService constructs a service. events and auditLogger may be nil.
func NewBillingService(
	tariffs domain.TariffRepository,
	customers domain.CustomerRepository,
	holidays domain.HolidayRepository,
	usage domain.UsageRepository,
	snapshots domain.BillSnapshotRepository,
	events EventPublisher,
	auditLogger audit.Logger,
) (*BillingService, error) {
	if tariffs == nil || customers == nil || holidays == nil || usage == nil || snapshots == nil {
		return nil, errors.New("billing service: nil repository")
	}
	return &BillingService{
		tariffs:     tariffs,
		customers:   customers,
		holidays:    holidays,
		usage:       usage,
		snapshots:   snapshots,
		events:      events,
		auditLogger: auditLogger,
	}, nil
}

// ComputeForCustomer loads every input a named customer needs and runs
// domain.ComputeBill, per §6's compute_bill entry point.
func (s *BillingService) ComputeForCustomer(ctx context.Context, customerName string, period domain.RequestPeriod, strategy domain.GapStrategy) (*domain.BillComputation, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillingCompute(result, time.Since(start))
	}()

	profile, err := s.customers.FindByName(ctx, customerName)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if profile == nil {
		result = metrics.ResultError
		return nil, domain.ErrMissingData
	}

	utility, tariffName, err := s.customers.TariffAssignment(ctx, customerName)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	tariff, err := s.tariffs.FindByUtilityName(ctx, utility, tariffName)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if tariff == nil {
		result = metrics.ResultError
		return nil, domain.ErrMissingData
	}

	holidays, err := s.holidays.ListByUtility(ctx, utility)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	loc, err := loadLocation(profile.Timezone)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	fromUTC := time.Date(period.StartLocal.Year, period.StartLocal.Month, period.StartLocal.Day, 0, 0, 0, 0, loc).UTC()
	toUTC := time.Date(period.EndLocal.Year, period.EndLocal.Month, period.EndLocal.Day, 0, 0, 0, 0, loc).AddDate(0, 0, 1).UTC()
	usage, err := s.usage.Find(ctx, customerName, fromUTC, toUTC)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	computation, err := domain.ComputeBill(ctx, *profile, *tariff, holidays, usage, period, strategy)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	if err := s.snapshots.Save(ctx, customerName, *computation); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	s.publishComputed(ctx, customerName, utility, computation)
	s.logAudit(ctx, customerName, computation)
	return computation, nil
}

// FetchSnapshot returns a previously computed month without recomputing,
// per §6's "fetch a previously computed bill".
func (s *BillingService) FetchSnapshot(ctx context.Context, customerName string, month domain.BillingMonthKey) (*domain.BillResult, error) {
	return s.snapshots.FindLatest(ctx, customerName, month)
}

func (s *BillingService) publishComputed(ctx context.Context, customerName, utility string, computation *domain.BillComputation) {
	if s.events == nil {
		return
	}
	months := make([]string, len(computation.Months))
	for i, m := range computation.Months {
		months[i] = m.Month.String()
	}
	_ = s.events.Publish(ctx, BillComputed{
		CustomerName:  customerName,
		Utility:       utility,
		Months:        months,
		GrandTotalUSD: computation.GrandTotalUSD.String(),
		OccurredAt:    time.Now().UTC(),
	})
}

func (s *BillingService) logAudit(ctx context.Context, customerName string, computation *domain.BillComputation) {
	if s.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		return
	}
	_ = s.auditLogger.Log(ctx, audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       "billing.compute",
		ResourceType: "bill",
		ResourceID:   customerName,
		CreatedAt:    time.Now().UTC(),
	})
}

func loadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, domain.ErrZoneUnknown
	}
	return loc, nil
}
