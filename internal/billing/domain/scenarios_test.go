package domain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func hourlyJanuaryUsage(energyKWh, demandKW string) []UsageInterval {
	energy := decimal.RequireFromString(energyKWh)
	demand := decimal.RequireFromString(demandKW)
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	var usage []UsageInterval
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		usage = append(usage, UsageInterval{
			IntervalStartUTC: t,
			IntervalEndUTC:   t.Add(time.Hour),
			EnergyKWh:        energy,
			PeakDemandKW:     demand,
		})
	}
	return usage
}

func janProfile() CustomerProfile {
	return CustomerProfile{Name: "acme", Timezone: "UTC", BillingIntervalMinutes: 60, BillingDay: 31}
}

func janPeriod() RequestPeriod {
	return RequestPeriod{
		StartLocal: CivilDate{Year: 2024, Month: time.January, Day: 1},
		EndLocal:   CivilDate{Year: 2024, Month: time.January, Day: 31},
	}
}

func assertDecimalEqual(t *testing.T, label string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s: got %s, want %s", label, got.String(), want.String())
	}
}

// S1 — Flat tariff, full month.
func TestScenarioS1FlatTariffFullMonth(t *testing.T) {
	usage := hourlyJanuaryUsage("1", "4")
	tariff := Tariff{
		Utility: "acme-power",
		Name:    "flat",
		EnergyCharges: []EnergyCharge{
			{ID: "e1", Name: "energy", RateUSDPerKWh: decimal.RequireFromString("0.10")},
		},
		CustomerCharges: []CustomerCharge{
			{ID: "c1", Name: "customer", AmountUSD: decimal.RequireFromString("10.00"), ChargeType: ChargeMonthly},
		},
	}

	comp, err := ComputeBill(context.Background(), janProfile(), tariff, nil, usage, janPeriod(), GapExtrapolateLast)
	if err != nil {
		t.Fatalf("ComputeBill: %v", err)
	}
	if len(comp.Months) != 1 {
		t.Fatalf("expected 1 billing month, got %d", len(comp.Months))
	}
	month := comp.Months[0]
	assertDecimalEqual(t, "energy line item", month.LineItems["e1"], decimal.RequireFromString("74.40"))
	assertDecimalEqual(t, "customer line item (rounded)", month.LineItems["c1"].Round(2), decimal.RequireFromString("10.00"))
	assertDecimalEqual(t, "total", month.TotalUSD, decimal.RequireFromString("84.40"))
}

// S2 — Peak/off-peak split.
func TestScenarioS2PeakOffPeakSplit(t *testing.T) {
	usage := hourlyJanuaryUsage("1", "4")
	peakRule := ApplicabilityRule{
		Name:             "peak-hours",
		PeriodStartLocal: TimeOfDay{Hour: 16},
		PeriodEndLocal:   TimeOfDay{Hour: 21},
		AppliesWeekdays:  true,
		AppliesWeekends:  true,
		AppliesHolidays:  true,
	}
	offPeakRules := []ApplicabilityRule{
		{
			Name:             "off-peak-morning",
			PeriodStartLocal: TimeOfDay{Hour: 0},
			PeriodEndLocal:   TimeOfDay{Hour: 16},
			AppliesWeekdays:  true,
			AppliesWeekends:  true,
			AppliesHolidays:  true,
		},
		{
			Name:             "off-peak-evening",
			PeriodStartLocal: TimeOfDay{Hour: 21},
			PeriodEndLocal:   TimeOfDay{Hour: 24},
			AppliesWeekdays:  true,
			AppliesWeekends:  true,
			AppliesHolidays:  true,
		},
	}
	tariff := Tariff{
		Utility: "acme-power",
		Name:    "tou",
		EnergyCharges: []EnergyCharge{
			{ID: "peak", Name: "peak", RateUSDPerKWh: decimal.RequireFromString("0.20"), Rules: []ApplicabilityRule{peakRule}},
			{ID: "offpeak", Name: "offpeak", RateUSDPerKWh: decimal.RequireFromString("0.05"), Rules: offPeakRules},
		},
	}

	comp, err := ComputeBill(context.Background(), janProfile(), tariff, nil, usage, janPeriod(), GapExtrapolateLast)
	if err != nil {
		t.Fatalf("ComputeBill: %v", err)
	}
	month := comp.Months[0]
	assertDecimalEqual(t, "peak line item", month.LineItems["peak"], decimal.RequireFromString("31.00"))
	assertDecimalEqual(t, "offpeak line item", month.LineItems["offpeak"], decimal.RequireFromString("29.45"))
	assertDecimalEqual(t, "total", month.TotalUSD, decimal.RequireFromString("60.45"))
}

// S3 — Monthly demand with tie.
func TestScenarioS3MonthlyDemandTie(t *testing.T) {
	usage := hourlyJanuaryUsage("1", "10")
	tariff := Tariff{
		Utility: "acme-power",
		Name:    "demand",
		DemandCharges: []DemandCharge{
			{ID: "d1", Name: "demand", RateUSDPerKW: decimal.RequireFromString("25"), PeakType: ChargeMonthly},
		},
	}

	comp, err := ComputeBill(context.Background(), janProfile(), tariff, nil, usage, janPeriod(), GapExtrapolateLast)
	if err != nil {
		t.Fatalf("ComputeBill: %v", err)
	}
	month := comp.Months[0]
	assertDecimalEqual(t, "demand line item (rounded)", month.LineItems["d1"].Round(2), decimal.RequireFromString("250.00"))

	expectedShare := decimal.RequireFromString("250").Div(decimal.NewFromInt(744))
	matrix := comp.CostMatrix()
	first := usage[0].IntervalStartUTC
	assertDecimalEqual(t, "cost matrix first interval", matrix.At(first, "d1"), expectedShare)
}

// S4 — Daily demand, partial request.
func TestScenarioS4DailyDemandPartialRequest(t *testing.T) {
	day := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	var usage []UsageInterval
	for h := 0; h < 24; h++ {
		start := day.Add(time.Duration(h) * time.Hour)
		demand := decimal.RequireFromString("8")
		if h == 14 {
			demand = decimal.RequireFromString("12")
		}
		usage = append(usage, UsageInterval{
			IntervalStartUTC: start,
			IntervalEndUTC:   start.Add(time.Hour),
			EnergyKWh:        decimal.RequireFromString("1"),
			PeakDemandKW:     demand,
		})
	}
	tariff := Tariff{
		Utility: "acme-power",
		Name:    "daily-demand",
		DemandCharges: []DemandCharge{
			{ID: "d1", Name: "demand", RateUSDPerKW: decimal.RequireFromString("5"), PeakType: ChargeDaily},
		},
	}
	profile := CustomerProfile{Name: "acme", Timezone: "UTC", BillingIntervalMinutes: 60, BillingDay: 31}
	period := RequestPeriod{
		StartLocal: CivilDate{Year: 2024, Month: time.January, Day: 15},
		EndLocal:   CivilDate{Year: 2024, Month: time.January, Day: 15},
	}

	comp, err := ComputeBill(context.Background(), profile, tariff, nil, usage, period, GapExtrapolateLast)
	if err != nil {
		t.Fatalf("ComputeBill: %v", err)
	}
	month := comp.Months[0]
	assertDecimalEqual(t, "demand line item", month.LineItems["d1"], decimal.RequireFromString("60"))
}

// S6 — Wrap-year window.
func TestScenarioS6WrapYearWindow(t *testing.T) {
	rule := ApplicabilityRule{
		Name:            "winter",
		AppliesStartMD:  MonthDay{Month: time.October, Day: 1},
		AppliesEndMD:    MonthDay{Month: time.May, Day: 31},
		AppliesWeekdays: true,
		AppliesWeekends: true,
		AppliesHolidays: true,
	}

	cases := []struct {
		date  time.Time
		want  bool
	}{
		{time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC), false},
		{time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC), true},
		{time.Date(2024, time.November, 15, 12, 0, 0, 0, time.UTC), true},
	}
	for _, c := range cases {
		meta := IntervalMeta{LocalStart: c.date, DayClass: DayWeekday}
		got := ruleMatches(rule, meta)
		if got != c.want {
			t.Errorf("ruleMatches(%s) = %v, want %v", c.date.Format("2006-01-02"), got, c.want)
		}
	}
}

// Boundary behaviour: interval at period_end is excluded, at period_start included.
func TestApplicabilityBoundaryInclusion(t *testing.T) {
	rule := ApplicabilityRule{
		Name:             "window",
		PeriodStartLocal: TimeOfDay{Hour: 16},
		PeriodEndLocal:   TimeOfDay{Hour: 21},
		AppliesWeekdays:  true,
		AppliesWeekends:  true,
		AppliesHolidays:  true,
	}
	startMeta := IntervalMeta{LocalStart: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC), DayClass: DayWeekday}
	endMeta := IntervalMeta{LocalStart: time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC), DayClass: DayWeekday}
	if !ruleMatches(rule, startMeta) {
		t.Error("interval at period_start_time_local should be included")
	}
	if ruleMatches(rule, endMeta) {
		t.Error("interval at period_end_time_local should be excluded")
	}
}

// Invariant 9: rules with all day-class flags false produce zero cost.
func TestInvariantAllFlagsFalseZeroCost(t *testing.T) {
	usage := hourlyJanuaryUsage("1", "4")
	tariff := Tariff{
		Utility: "acme-power",
		Name:    "no-days",
		EnergyCharges: []EnergyCharge{
			{ID: "e1", Name: "energy", RateUSDPerKWh: decimal.RequireFromString("0.10"), Rules: []ApplicabilityRule{
				{Name: "none", AppliesWeekdays: false, AppliesWeekends: false, AppliesHolidays: false},
			}},
		},
	}
	comp, err := ComputeBill(context.Background(), janProfile(), tariff, nil, usage, janPeriod(), GapExtrapolateLast)
	if err != nil {
		t.Fatalf("ComputeBill: %v", err)
	}
	assertDecimalEqual(t, "energy line item", comp.Months[0].LineItems["e1"], decimal.Zero)
}

// Invariant 7: energy allocation is linear in energy.
func TestInvariantEnergyLinearity(t *testing.T) {
	tariff := Tariff{
		Utility: "acme-power",
		Name:    "flat",
		EnergyCharges: []EnergyCharge{
			{ID: "e1", Name: "energy", RateUSDPerKWh: decimal.RequireFromString("0.10")},
		},
	}
	base := hourlyJanuaryUsage("1", "0")
	scaled := hourlyJanuaryUsage("3", "0")

	compBase, err := ComputeBill(context.Background(), janProfile(), tariff, nil, base, janPeriod(), GapExtrapolateLast)
	if err != nil {
		t.Fatalf("ComputeBill base: %v", err)
	}
	compScaled, err := ComputeBill(context.Background(), janProfile(), tariff, nil, scaled, janPeriod(), GapExtrapolateLast)
	if err != nil {
		t.Fatalf("ComputeBill scaled: %v", err)
	}
	want := compBase.Months[0].LineItems["e1"].Mul(decimal.NewFromInt(3))
	assertDecimalEqual(t, "scaled energy line item", compScaled.Months[0].LineItems["e1"], want)
}
