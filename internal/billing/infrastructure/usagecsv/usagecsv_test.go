package usagecsv

import (
	"strings"
	"testing"
	"time"
)

const header = "interval_start,interval_end,usage,usage_unit,peak_demand,peak_demand_unit,temperature,temperature_unit\n"

func mustImport(t *testing.T, csv string) ImportResult {
	t.Helper()
	return Import(strings.NewReader(header+csv), time.UTC, nil)
}

// TestUnitConversion covers spec.md §6's accepted units: energy kWh/Wh/MWh,
// demand kW/W/MW, all normalized to kWh/kW.
func TestUnitConversion(t *testing.T) {
	cases := []struct {
		name       string
		row        string
		wantEnergy string
		wantDemand string
	}{
		{"kwh and kw pass through", "2024-01-01T00:00:00Z,2024-01-01T01:00:00Z,5,kwh,2,kw,,\n", "5", "2"},
		{"wh converts to kwh", "2024-01-01T00:00:00Z,2024-01-01T01:00:00Z,5000,Wh,2000,W,,\n", "5", "2"},
		{"mwh converts to kwh", "2024-01-01T00:00:00Z,2024-01-01T01:00:00Z,0.005,MWh,0.002,MW,,\n", "5", "2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := mustImport(t, tc.row)
			if len(result.Errors) > 0 {
				t.Fatalf("unexpected errors: %v", result.Errors)
			}
			if len(result.Created) != 1 {
				t.Fatalf("expected 1 row imported, got %d", len(result.Created))
			}
			iv := result.Created[0]
			if iv.EnergyKWh.String() != tc.wantEnergy {
				t.Errorf("energy: got %s, want %s", iv.EnergyKWh.String(), tc.wantEnergy)
			}
			if iv.PeakDemandKW.String() != tc.wantDemand {
				t.Errorf("demand: got %s, want %s", iv.PeakDemandKW.String(), tc.wantDemand)
			}
		})
	}
}

func TestUnitConversionRejectsUnknownUnit(t *testing.T) {
	result := mustImport(t, "2024-01-01T00:00:00Z,2024-01-01T01:00:00Z,5,BTU,2,kw,,\n")
	if len(result.Errors) == 0 {
		t.Fatalf("expected an error for an unrecognized usage unit")
	}
}

// TestNaiveTimestampRejected covers spec.md §6: "naive timestamps are
// rejected" — a timestamp with no UTC/offset designator must fail, not
// silently localize to the customer's timezone.
func TestNaiveTimestampRejected(t *testing.T) {
	result := mustImport(t, "2024-01-01T00:00:00,2024-01-01T01:00:00,5,kwh,2,kw,,\n")
	if len(result.Errors) == 0 {
		t.Fatalf("expected naive timestamps to be rejected")
	}
}

func TestOffsetTimestampAccepted(t *testing.T) {
	result := mustImport(t, "2024-01-01T00:00:00-05:00,2024-01-01T01:00:00-05:00,5,kwh,2,kw,,\n")
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected 1 row imported, got %d", len(result.Created))
	}
	want := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	if !result.Created[0].IntervalStartUTC.Equal(want) {
		t.Errorf("interval_start: got %v, want %v", result.Created[0].IntervalStartUTC, want)
	}
}
