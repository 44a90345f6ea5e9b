package domain

import (
	"testing"
	"time"
)

func TestBillingMonthBoundaryBillingDay15(t *testing.T) {
	loc := time.UTC
	beforeClose := time.Date(2024, time.February, 15, 23, 55, 0, 0, loc)
	afterClose := time.Date(2024, time.February, 16, 0, 0, 0, 0, loc)

	got := BillingMonthFor(beforeClose, 15)
	want := BillingMonthKey{Year: 2024, Month: time.February}
	if got != want {
		t.Errorf("BillingMonthFor(%v) = %v, want %v", beforeClose, got, want)
	}

	got = BillingMonthFor(afterClose, 15)
	want = BillingMonthKey{Year: 2024, Month: time.March}
	if got != want {
		t.Errorf("BillingMonthFor(%v) = %v, want %v", afterClose, got, want)
	}
}

func TestDaysInBillingMonthShorterCalendarMonth(t *testing.T) {
	// billing_day 31 in February: the month is capped to the last calendar
	// day, so the billing month still ends in February.
	days := DaysInBillingMonth(BillingMonthKey{Year: 2024, Month: time.February}, 31, time.UTC)
	if days != 29 { // 2024 is a leap year
		t.Errorf("DaysInBillingMonth(Feb 2024, billing_day=31) = %d, want 29", days)
	}
}

// S5 — DST spring-forward: a 16:00-21:00 local window on the
// America/Los_Angeles spring-forward date still yields exactly 5 hours of
// 5-minute intervals (60), because the skipped hour falls at 02:00-03:00,
// outside the window.
func TestScenarioS5DSTSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	grid, err := BuildTimeGrid(
		CivilDate{Year: 2024, Month: time.March, Day: 10},
		CivilDate{Year: 2024, Month: time.March, Day: 10},
		"America/Los_Angeles",
		5,
		nil,
		31,
	)
	if err != nil {
		t.Fatalf("BuildTimeGrid: %v", err)
	}

	// The spring-forward skip (02:00 -> 03:00) removes one hour's worth of
	// 5-minute intervals (12) from the 288 that a normal day would have.
	if len(grid.Intervals) != 276 {
		t.Fatalf("expected 276 intervals on the skip day in %s, got %d", loc, len(grid.Intervals))
	}

	rule := ApplicabilityRule{
		Name:             "peak",
		PeriodStartLocal: TimeOfDay{Hour: 16},
		PeriodEndLocal:   TimeOfDay{Hour: 21},
		AppliesWeekdays:  true,
		AppliesWeekends:  true,
		AppliesHolidays:  true,
	}
	mask := EvaluateRule(grid, rule)
	count := 0
	for _, m := range mask {
		if m {
			count++
		}
	}
	// 5 hours * 12 five-minute intervals per hour.
	if count != 60 {
		t.Errorf("peak window interval count = %d, want 60", count)
	}
}
