package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GapStrategy selects how GapFiller repairs missing intervals.
type GapStrategy string

const (
	GapExtrapolateLast  GapStrategy = "extrapolate_last"
	GapLinearInterpolate GapStrategy = "linear_interpolate"
)

// FilledInterval is one row of the fully-populated usage series aligned to
// the TimeGrid by position.
type FilledInterval struct {
	EnergyKWh    decimal.Decimal
	PeakDemandKW decimal.Decimal
	Filled       bool
}

// ValidateUsage checks usage records for the problems the original system's
// validate_usage_dataframe surfaces before any gap-filling happens: duplicate
// keys, mixed cadence, and negative values. All problems
// found are collected and returned together, not just the first, per
// SPEC_FULL.md §12.
func ValidateUsage(intervals []UsageInterval, stepMinutes int) error {
	var problems []string
	seen := make(map[time.Time]bool, len(intervals))
	step := time.Duration(stepMinutes) * time.Minute

	for _, iv := range intervals {
		if iv.IntervalEndUTC.Sub(iv.IntervalStartUTC) != step {
			problems = append(problems, "usage interval "+iv.IntervalStartUTC.Format(time.RFC3339)+": grain does not match customer cadence")
		}
		if seen[iv.IntervalStartUTC] {
			problems = append(problems, "usage interval "+iv.IntervalStartUTC.Format(time.RFC3339)+": duplicate interval_start_utc")
		}
		seen[iv.IntervalStartUTC] = true
		if iv.EnergyKWh.IsNegative() {
			problems = append(problems, "usage interval "+iv.IntervalStartUTC.Format(time.RFC3339)+": negative energy")
		}
		if iv.PeakDemandKW.IsNegative() {
			problems = append(problems, "usage interval "+iv.IntervalStartUTC.Format(time.RFC3339)+": negative peak_demand")
		}
	}
	if len(problems) == 0 {
		return nil
	}
	msg := "usage validation failed:"
	for _, p := range problems {
		msg += "\n  - " + p
	}
	return newValidationErr(msg)
}

// FillGaps aligns usage onto the grid and repairs missing intervals using
// strategy, per §4.2. It returns exactly len(grid.Intervals) rows and a
// GapReport keyed by billing month.
func FillGaps(grid *TimeGrid, usage []UsageInterval, strategy GapStrategy, billingDay int) ([]FilledInterval, map[BillingMonthKey]GapReport, error) {
	byStart := make(map[time.Time]UsageInterval, len(usage))
	for _, u := range usage {
		byStart[u.IntervalStartUTC] = u
	}

	n := len(grid.Intervals)
	filled := make([]FilledInterval, n)
	present := make([]bool, n)
	for i, meta := range grid.Intervals {
		if u, ok := byStart[meta.UTCStart]; ok {
			filled[i] = FilledInterval{EnergyKWh: u.EnergyKWh, PeakDemandKW: u.PeakDemandKW, Filled: false}
			present[i] = true
		}
	}

	switch strategy {
	case GapLinearInterpolate:
		interpolate(filled, present)
	default:
		extrapolateLast(filled, present)
	}

	reports := buildGapReports(grid, present, billingDay)
	return filled, reports, nil
}

func extrapolateLast(filled []FilledInterval, present []bool) {
	n := len(filled)

	// First pass: every absent interval takes the last preceding present
	// value, defaulting to zero until one is seen.
	var last FilledInterval
	haveLast := false
	for i := 0; i < n; i++ {
		if present[i] {
			last = filled[i]
			haveLast = true
			continue
		}
		if haveLast {
			filled[i] = FilledInterval{EnergyKWh: last.EnergyKWh, PeakDemandKW: last.PeakDemandKW, Filled: true}
		} else {
			filled[i] = FilledInterval{Filled: true}
		}
	}

	// Second pass: any leading run with no preceding observation at all
	// instead takes the next following present value, per §4.2.
	var next FilledInterval
	haveNext := false
	for i := n - 1; i >= 0; i-- {
		if present[i] {
			next = filled[i]
			haveNext = true
			continue
		}
		if !haveNext {
			continue
		}
		if !hadPrecedingObservation(present, i) {
			filled[i] = FilledInterval{EnergyKWh: next.EnergyKWh, PeakDemandKW: next.PeakDemandKW, Filled: true}
		}
	}
}

func hadPrecedingObservation(present []bool, idx int) bool {
	for j := idx - 1; j >= 0; j-- {
		if present[j] {
			return true
		}
	}
	return false
}

func interpolate(filled []FilledInterval, present []bool) {
	n := len(filled)
	i := 0
	for i < n {
		if present[i] {
			i++
			continue
		}
		start := i
		for i < n && !present[i] {
			i++
		}
		end := i // first present index after the gap, or n

		var before, after *FilledInterval
		if start > 0 {
			v := filled[start-1]
			before = &v
		}
		if end < n {
			v := filled[end]
			after = &v
		}

		switch {
		case before != nil && after != nil:
			span := end - (start - 1)
			for k := start; k < end; k++ {
				frac := decimal.NewFromInt(int64(k - (start - 1))).Div(decimal.NewFromInt(int64(span)))
				energy := before.EnergyKWh.Add(after.EnergyKWh.Sub(before.EnergyKWh).Mul(frac))
				demand := before.PeakDemandKW.Add(after.PeakDemandKW.Sub(before.PeakDemandKW).Mul(frac))
				filled[k] = FilledInterval{EnergyKWh: energy, PeakDemandKW: demand, Filled: true}
			}
		case before != nil:
			for k := start; k < end; k++ {
				filled[k] = FilledInterval{EnergyKWh: before.EnergyKWh, PeakDemandKW: before.PeakDemandKW, Filled: true}
			}
		case after != nil:
			for k := start; k < end; k++ {
				filled[k] = FilledInterval{EnergyKWh: after.EnergyKWh, PeakDemandKW: after.PeakDemandKW, Filled: true}
			}
		default:
			// No observations at all; leave zero-valued and flagged.
			for k := start; k < end; k++ {
				filled[k] = FilledInterval{Filled: true}
			}
		}
	}
}

type gapRun struct {
	start time.Time
	end   time.Time
}

func buildGapReports(grid *TimeGrid, present []bool, billingDay int) map[BillingMonthKey]GapReport {
	reports := make(map[BillingMonthKey]GapReport)
	open := make(map[BillingMonthKey]*gapRun)

	closeRun := func(key BillingMonthKey, run *gapRun) {
		r := reports[key]
		gap := GapRange{StartUTC: run.start, EndUTC: run.end}
		r.GapRanges = append(r.GapRanges, gap)
		if d := gap.Duration(); d > r.LongestGap {
			r.LongestGap = d
		}
		reports[key] = r
	}

	for i, meta := range grid.Intervals {
		key := meta.BillingMonth
		if _, ok := reports[key]; !ok {
			reports[key] = GapReport{}
		}
		if present[i] {
			if run, ok := open[key]; ok {
				closeRun(key, run)
				delete(open, key)
			}
			continue
		}
		r := reports[key]
		r.MissingCount++
		reports[key] = r
		if run, ok := open[key]; ok {
			run.end = meta.UTCEnd
		} else {
			open[key] = &gapRun{start: meta.UTCStart, end: meta.UTCEnd}
		}
	}
	for key, run := range open {
		closeRun(key, run)
	}
	return reports
}
