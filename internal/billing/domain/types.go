package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayClass classifies a local calendar day for applicability evaluation.
type DayClass int

const (
	DayWeekday DayClass = iota
	DayWeekend
	DayHoliday
)

func (d DayClass) String() string {
	switch d {
	case DayWeekday:
		return "weekday"
	case DayWeekend:
		return "weekend"
	case DayHoliday:
		return "holiday"
	default:
		return "unknown"
	}
}

// ChargeType distinguishes daily vs monthly scoped customer/demand charges.
type ChargeType string

const (
	ChargeDaily   ChargeType = "daily"
	ChargeMonthly ChargeType = "monthly"
)

// MonthDay is a (month, day) pair with the year ignored, used by applicability
// date windows. Zero value means "absent".
type MonthDay struct {
	Month time.Month
	Day   int
}

// IsZero reports whether the bound is absent.
func (m MonthDay) IsZero() bool {
	return m.Month == 0 && m.Day == 0
}

// normalized projects m onto a fixed year-2000 calendar so two MonthDay
// values can be compared with ordinary time.Time comparisons regardless of
// the actual year, including across a wraparound window.
func (m MonthDay) normalized() time.Time {
	return time.Date(2000, m.Month, m.Day, 0, 0, 0, 0, time.UTC)
}

// ApplicabilityRule selects intervals by time-of-day, month/day window, and
// day class. See SPEC_FULL.md §4.3.
type ApplicabilityRule struct {
	ID                  string
	Name                string
	PeriodStartLocal    TimeOfDay
	PeriodEndLocal      TimeOfDay
	AppliesStartMD      MonthDay
	AppliesEndMD        MonthDay
	AppliesWeekdays     bool
	AppliesWeekends     bool
	AppliesHolidays     bool
}

// TimeOfDay is a local wall-clock time of day at minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Equal reports whether two times of day are identical.
func (t TimeOfDay) Equal(other TimeOfDay) bool { return t.minutes() == other.minutes() }

// IsMidnight reports whether t is 00:00.
func (t TimeOfDay) IsMidnight() bool { return t.Hour == 0 && t.Minute == 0 }

// Validate checks the rule's own invariants (§4.6), independent of any
// tariff it belongs to.
func (r ApplicabilityRule) Validate() error {
	if !r.PeriodEndLocal.Equal(r.PeriodStartLocal) {
		if r.PeriodEndLocal.minutes() <= r.PeriodStartLocal.minutes() {
			return newValidationErr("applicability rule %q: period_end must be > period_start unless both are 00:00 (all-day sentinel)", r.Name)
		}
	} else if !r.PeriodStartLocal.IsMidnight() {
		return newValidationErr("applicability rule %q: period_end must be > period_start unless both are 00:00 (all-day sentinel)", r.Name)
	}
	if r.AppliesStartMD.IsZero() != r.AppliesEndMD.IsZero() {
		return newValidationErr("applicability rule %q: applies_start_md and applies_end_md must both be present or both absent", r.Name)
	}
	return nil
}

// ChargeKind tags the three charge families (SPEC_FULL.md §9). ComputeBill
// does not branch on it; it iterates each family's slice on the tariff.
type ChargeKind int

const (
	ChargeKindEnergy ChargeKind = iota
	ChargeKindDemand
	ChargeKindCustomer
)

// Charge is the common surface shared by EnergyCharge, DemandCharge, and
// CustomerCharge so BillAssembler and the allocators can operate over a
// uniform charge list without reflection.
type Charge interface {
	ChargeID() string
	ChargeName() string
	Kind() ChargeKind
}

// EnergyCharge bills metered energy at a flat rate whenever any of its rules
// match the interval.
type EnergyCharge struct {
	ID            string
	Name          string
	RateUSDPerKWh decimal.Decimal
	Rules         []ApplicabilityRule
}

func (c EnergyCharge) ChargeID() string    { return c.ID }
func (c EnergyCharge) ChargeName() string  { return c.Name }
func (c EnergyCharge) Kind() ChargeKind    { return ChargeKindEnergy }

// DemandCharge bills the peak demand observed within a daily or monthly
// scope, restricted to intervals where its rules match.
type DemandCharge struct {
	ID           string
	Name         string
	RateUSDPerKW decimal.Decimal
	PeakType     ChargeType
	Rules        []ApplicabilityRule
}

func (c DemandCharge) ChargeID() string    { return c.ID }
func (c DemandCharge) ChargeName() string  { return c.Name }
func (c DemandCharge) Kind() ChargeKind    { return ChargeKindDemand }

// CustomerCharge is a flat recurring charge with no applicability rules.
type CustomerCharge struct {
	ID         string
	Name       string
	AmountUSD  decimal.Decimal
	ChargeType ChargeType
}

func (c CustomerCharge) ChargeID() string    { return c.ID }
func (c CustomerCharge) ChargeName() string  { return c.Name }
func (c CustomerCharge) Kind() ChargeKind    { return ChargeKindCustomer }

// Tariff is the immutable, declarative description of a utility's rate
// structure.
type Tariff struct {
	Utility         string
	Name            string
	EnergyCharges   []EnergyCharge
	DemandCharges   []DemandCharge
	CustomerCharges []CustomerCharge
}

// AllCharges returns every charge in the tariff as the common Charge
// interface, in a stable order (energy, demand, customer).
func (t Tariff) AllCharges() []Charge {
	out := make([]Charge, 0, len(t.EnergyCharges)+len(t.DemandCharges)+len(t.CustomerCharges))
	for _, c := range t.EnergyCharges {
		out = append(out, c)
	}
	for _, c := range t.DemandCharges {
		out = append(out, c)
	}
	for _, c := range t.CustomerCharges {
		out = append(out, c)
	}
	return out
}

// Validate checks the tariff-level invariants of §3/§4.6.
func (t Tariff) Validate() error {
	if t.Utility == "" {
		return newValidationErr("tariff: empty utility")
	}
	if t.Name == "" {
		return newValidationErr("tariff: empty name")
	}
	if len(t.EnergyCharges) == 0 && len(t.DemandCharges) == 0 && len(t.CustomerCharges) == 0 {
		return newValidationErr("tariff %q: at least one charge is required", t.Name)
	}

	seen := map[string]map[string]bool{
		"energy":   {},
		"demand":   {},
		"customer": {},
	}
	for _, c := range t.EnergyCharges {
		if seen["energy"][c.Name] {
			return newValidationErr("tariff %q: duplicate energy charge name %q", t.Name, c.Name)
		}
		seen["energy"][c.Name] = true
		if c.RateUSDPerKWh.IsNegative() {
			return newValidationErr("energy charge %q: rate must be >= 0", c.Name)
		}
		for _, rule := range c.Rules {
			if err := rule.Validate(); err != nil {
				return err
			}
		}
	}
	for _, c := range t.DemandCharges {
		if seen["demand"][c.Name] {
			return newValidationErr("tariff %q: duplicate demand charge name %q", t.Name, c.Name)
		}
		seen["demand"][c.Name] = true
		if c.RateUSDPerKW.IsNegative() {
			return newValidationErr("demand charge %q: rate must be >= 0", c.Name)
		}
		if c.PeakType != ChargeDaily && c.PeakType != ChargeMonthly {
			return newValidationErr("demand charge %q: peak_type must be daily or monthly", c.Name)
		}
		for _, rule := range c.Rules {
			if err := rule.Validate(); err != nil {
				return err
			}
		}
	}
	for _, c := range t.CustomerCharges {
		if seen["customer"][c.Name] {
			return newValidationErr("tariff %q: duplicate customer charge name %q", t.Name, c.Name)
		}
		seen["customer"][c.Name] = true
		if c.AmountUSD.IsNegative() {
			return newValidationErr("customer charge %q: amount must be >= 0", c.Name)
		}
		if c.ChargeType != ChargeDaily && c.ChargeType != ChargeMonthly {
			return newValidationErr("customer charge %q: charge_type must be daily or monthly", c.Name)
		}
	}
	return nil
}

// CustomerProfile carries the billing-relevant attributes of a customer
// independent of their tariff.
type CustomerProfile struct {
	Name                   string
	Timezone               string
	BillingIntervalMinutes int
	BillingDay             int
}

// Validate checks §3/§4.6 invariants on the profile.
func (p CustomerProfile) Validate() error {
	if p.Timezone == "" {
		return newValidationErr("customer profile: empty timezone")
	}
	if p.BillingDay < 1 || p.BillingDay > 31 {
		return newValidationErr("customer profile: billing_day must be in [1,31]")
	}
	if p.BillingIntervalMinutes <= 0 || 60%p.BillingIntervalMinutes != 0 {
		return newValidationErr("customer profile: billing_interval_minutes must evenly divide 60")
	}
	if 1440%p.BillingIntervalMinutes != 0 {
		return newValidationErr("customer profile: billing_interval_minutes must evenly divide 1440")
	}
	return nil
}

// UsageInterval is one atomic usage observation, per §3.
type UsageInterval struct {
	IntervalStartUTC time.Time
	IntervalEndUTC   time.Time
	EnergyKWh        decimal.Decimal
	PeakDemandKW     decimal.Decimal
}

// Holiday is a local civil date observed by a utility.
type Holiday struct {
	Utility string
	Name    string
	Date    CivilDate
}

// CivilDate is a calendar date with no time-of-day or zone component.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// HolidaySet is a fast membership test for a set of holidays.
type HolidaySet map[CivilDate]bool

// NewHolidaySet builds a HolidaySet from a slice of Holiday.
func NewHolidaySet(holidays []Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		set[h.Date] = true
	}
	return set
}

// Contains reports whether date is a holiday.
func (s HolidaySet) Contains(date CivilDate) bool {
	return s[date]
}

// BillingMonthKey identifies a billing month by the calendar year/month of
// its closing day.
type BillingMonthKey struct {
	Year  int
	Month time.Month
}

func (k BillingMonthKey) String() string {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// GapRange is a maximal contiguous run of intervals absent from the usage
// input within the request period.
type GapRange struct {
	StartUTC time.Time
	EndUTC   time.Time
}

// Duration returns the wall-clock length of the gap.
func (g GapRange) Duration() time.Duration { return g.EndUTC.Sub(g.StartUTC) }

// GapReport summarises missing-interval statistics for one billing month.
type GapReport struct {
	MissingCount int
	LongestGap   time.Duration
	GapRanges    []GapRange
}

// BillResult is the per-billing-month output of a computation.
type BillResult struct {
	Month              BillingMonthKey
	PeriodStartLocal   CivilDate
	PeriodEndLocal     CivilDate
	LineItems          map[string]decimal.Decimal
	TotalUSD           decimal.Decimal
	Gaps               GapReport
}
