package tariffyaml

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"microgrid-cloud/internal/billing/domain"
)

// roundTrip exports a single tariff and re-imports it, returning the
// reimported tariff for the caller to compare.
func roundTrip(t *testing.T, tariff domain.Tariff) domain.Tariff {
	t.Helper()
	data, err := Export([]domain.Tariff{tariff})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	result := Import(data, false, nil)
	if len(result.Errors) > 0 {
		t.Fatalf("Import: %v", result.Errors[0].Messages)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 imported tariff, got %d", len(result.Created))
	}
	return result.Created[0]
}

// TestRoundTripMultiRuleCharge covers a charge with more than one
// applicability rule, the shape scenarios_test.go's S2 fixture uses
// (peak/off-peak split with two off-peak windows on one charge).
func TestRoundTripMultiRuleCharge(t *testing.T) {
	tariff := domain.Tariff{
		Utility: "acme-power",
		Name:    "tou",
		EnergyCharges: []domain.EnergyCharge{
			{
				ID:            "offpeak",
				Name:          "offpeak",
				RateUSDPerKWh: decimal.RequireFromString("0.05"),
				Rules: []domain.ApplicabilityRule{
					{
						Name:             "off-peak-morning",
						PeriodStartLocal: domain.TimeOfDay{Hour: 0},
						PeriodEndLocal:   domain.TimeOfDay{Hour: 16},
						AppliesWeekdays:  true,
						AppliesWeekends:  true,
						AppliesHolidays:  true,
					},
					{
						Name:             "off-peak-evening",
						PeriodStartLocal: domain.TimeOfDay{Hour: 21},
						PeriodEndLocal:   domain.TimeOfDay{Hour: 24},
						AppliesWeekdays:  true,
						AppliesWeekends:  true,
						AppliesHolidays:  true,
					},
				},
			},
		},
		DemandCharges: []domain.DemandCharge{
			{
				ID:           "summer-peak",
				Name:         "summer-peak",
				RateUSDPerKW: decimal.RequireFromString("12.50"),
				PeakType:     domain.ChargeMonthly,
				Rules: []domain.ApplicabilityRule{
					{
						Name:             "summer-window",
						PeriodStartLocal: domain.TimeOfDay{Hour: 12},
						PeriodEndLocal:   domain.TimeOfDay{Hour: 18},
						AppliesStartMD:   domain.MonthDay{Month: time.June, Day: 1},
						AppliesEndMD:     domain.MonthDay{Month: time.September, Day: 30},
						AppliesWeekdays:  true,
						AppliesWeekends:  false,
						AppliesHolidays:  false,
					},
				},
			},
		},
		CustomerCharges: []domain.CustomerCharge{
			{ID: "base", Name: "base", AmountUSD: decimal.RequireFromString("15.00"), ChargeType: domain.ChargeMonthly},
		},
	}

	got := roundTrip(t, tariff)
	if !domain.Equivalent(tariff, got) {
		t.Fatalf("reimported tariff is not equivalent to the original:\norig: %+v\ngot:  %+v", tariff, got)
	}
	if len(got.EnergyCharges[0].Rules) != 2 {
		t.Fatalf("expected 2 rules on the offpeak charge, got %d", len(got.EnergyCharges[0].Rules))
	}
}

// TestRoundTripOmittedBooleansDefaultTrue covers a hand-authored document
// that omits applies_weekdays/weekends/holidays entirely; per the YAML
// format, every omitted flag must default true rather than decode to false.
func TestRoundTripOmittedBooleansDefaultTrue(t *testing.T) {
	doc := []byte(`
tariffs:
  - name: flat
    utility: acme-power
    energy_charges:
      - name: energy
        rate_usd_per_kwh: "0.10"
        rules:
          - period_start_time_local: "00:00"
            period_end_time_local: "00:00"
`)
	result := Import(doc, false, nil)
	if len(result.Errors) > 0 {
		t.Fatalf("Import: %v", result.Errors[0].Messages)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 imported tariff, got %d", len(result.Created))
	}
	rule := result.Created[0].EnergyCharges[0].Rules[0]
	if !rule.AppliesWeekdays || !rule.AppliesWeekends || !rule.AppliesHolidays {
		t.Fatalf("expected all applies_* flags to default true, got weekdays=%v weekends=%v holidays=%v",
			rule.AppliesWeekdays, rule.AppliesWeekends, rule.AppliesHolidays)
	}

	docExplicitFalse := []byte(`
tariffs:
  - name: flat
    utility: acme-power
    energy_charges:
      - name: energy
        rate_usd_per_kwh: "0.10"
        rules:
          - period_start_time_local: "00:00"
            period_end_time_local: "00:00"
            applies_weekends: false
`)
	result = Import(docExplicitFalse, false, nil)
	if len(result.Errors) > 0 {
		t.Fatalf("Import: %v", result.Errors[0].Messages)
	}
	rule = result.Created[0].EnergyCharges[0].Rules[0]
	if !rule.AppliesWeekdays || rule.AppliesWeekends || !rule.AppliesHolidays {
		t.Fatalf("expected an explicit false to be honored, got weekdays=%v weekends=%v holidays=%v",
			rule.AppliesWeekdays, rule.AppliesWeekends, rule.AppliesHolidays)
	}
}

// TestImportNamedRuleRef covers the top-level applicability_rules map and a
// charge referencing one of its entries by name instead of inlining it.
func TestImportNamedRuleRef(t *testing.T) {
	doc := []byte(`
applicability_rules:
  business-hours:
    period_start_time_local: "09:00"
    period_end_time_local: "17:00"
    applies_weekdays: true
    applies_weekends: false
    applies_holidays: false

tariffs:
  - name: flat
    utility: acme-power
    energy_charges:
      - name: energy
        rate_usd_per_kwh: "0.10"
        rule_refs: ["business-hours"]
`)
	result := Import(doc, false, nil)
	if len(result.Errors) > 0 {
		t.Fatalf("Import: %v", result.Errors[0].Messages)
	}
	rules := result.Created[0].EnergyCharges[0].Rules
	if len(rules) != 1 || rules[0].Name != "business-hours" {
		t.Fatalf("expected the referenced rule to resolve by name, got %+v", rules)
	}
	if rules[0].AppliesWeekends {
		t.Fatalf("expected applies_weekends=false from the named rule to be honored")
	}
}

// TestImportDuplicateRuleNameRejected covers spec.md §6's "duplicate rule
// names forbidden" for the top-level applicability_rules map.
func TestImportDuplicateRuleNameRejected(t *testing.T) {
	doc := []byte(`
applicability_rules:
  business-hours:
    period_start_time_local: "09:00"
    period_end_time_local: "17:00"
  business-hours:
    period_start_time_local: "10:00"
    period_end_time_local: "18:00"

tariffs:
  - name: flat
    utility: acme-power
    energy_charges:
      - name: energy
        rate_usd_per_kwh: "0.10"
        rule_refs: ["business-hours"]
`)
	result := Import(doc, false, nil)
	if len(result.Errors) == 0 {
		t.Fatalf("expected a duplicate rule name error, got none")
	}
}

// TestImportUnknownRuleRefRejected covers a charge referencing a rule name
// that isn't declared in applicability_rules.
func TestImportUnknownRuleRefRejected(t *testing.T) {
	doc := []byte(`
tariffs:
  - name: flat
    utility: acme-power
    energy_charges:
      - name: energy
        rate_usd_per_kwh: "0.10"
        rule_refs: ["does-not-exist"]
`)
	result := Import(doc, false, nil)
	if len(result.Errors) == 0 {
		t.Fatalf("expected an unknown rule_ref error, got none")
	}
}
