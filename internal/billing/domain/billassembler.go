package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeSeries pairs a charge with its interval-aligned cost series, as
// produced by one of the three allocators.
type ChargeSeries struct {
	Charge Charge
	Cost   []decimal.Decimal
}

// CostMatrix is a sparse (interval_start_utc, charge_id) -> decimal mapping,
// built by BillAssembler during aggregation for audit access per §6.
type CostMatrix struct {
	byCharge map[string]map[time.Time]decimal.Decimal
}

// At returns the cost attributed to chargeID at intervalStartUTC, or zero
// if no entry exists.
func (m *CostMatrix) At(intervalStartUTC time.Time, chargeID string) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	byInterval, ok := m.byCharge[chargeID]
	if !ok {
		return decimal.Zero
	}
	if v, ok := byInterval[intervalStartUTC]; ok {
		return v
	}
	return decimal.Zero
}

// AssembleByBillingMonth aggregates the per-charge cost series into one
// BillResult per billing month, per §4.5. This is the entry point
// compute_bill uses.
func AssembleByBillingMonth(grid *TimeGrid, series []ChargeSeries, gapReports map[BillingMonthKey]GapReport) ([]BillResult, *CostMatrix, error) {
	monthOrder := make([]BillingMonthKey, 0)
	seen := make(map[BillingMonthKey]bool)
	lineItems := make(map[BillingMonthKey]map[string]decimal.Decimal)
	periodBounds := make(map[BillingMonthKey][2]CivilDate)

	matrix := &CostMatrix{byCharge: make(map[string]map[time.Time]decimal.Decimal)}

	for _, cs := range series {
		byInterval := make(map[time.Time]decimal.Decimal, len(cs.Cost))
		matrix.byCharge[cs.Charge.ChargeID()] = byInterval

		for i, meta := range grid.Intervals {
			key := meta.BillingMonth
			if !seen[key] {
				seen[key] = true
				monthOrder = append(monthOrder, key)
				lineItems[key] = make(map[string]decimal.Decimal)
			}

			cost := cs.Cost[i]
			if !cost.IsZero() {
				byInterval[meta.UTCStart] = cost
			}

			agg := lineItems[key]
			agg[cs.Charge.ChargeID()] = agg[cs.Charge.ChargeID()].Add(cost)

			date := CivilDate{Year: meta.LocalStart.Year(), Month: meta.LocalStart.Month(), Day: meta.LocalStart.Day()}
			bounds := periodBounds[key]
			if bounds[0] == (CivilDate{}) || before(date, bounds[0]) {
				bounds[0] = date
			}
			if bounds[1] == (CivilDate{}) || before(bounds[1], date) {
				bounds[1] = date
			}
			periodBounds[key] = bounds
		}
	}

	sortMonthKeys(monthOrder)

	results := make([]BillResult, 0, len(monthOrder))
	for _, key := range monthOrder {
		items := lineItems[key]
		total := decimal.Zero
		for _, v := range items {
			total = total.Add(v)
		}
		bounds := periodBounds[key]
		results = append(results, BillResult{
			Month:            key,
			PeriodStartLocal: bounds[0],
			PeriodEndLocal:   bounds[1],
			LineItems:        items,
			TotalUSD:         total.Round(2),
			Gaps:             gapReports[key],
		})
	}
	return results, matrix, nil
}

// AssembleWeighted aggregates a billing period that itself straddles more
// than one calendar month, using day-weighted proration across the
// calendar-month portions the period spans. This mirrors the original
// system's _aggregate_line_items_weighted and is used by the reconciliation
// tool (§12/§13) rather than by compute_bill, which always aggregates by
// billing month per §4.5.
func AssembleWeighted(grid *TimeGrid, series []ChargeSeries) (BillResult, *CostMatrix, error) {
	results, matrix, err := AssembleByBillingMonth(grid, series, nil)
	if err != nil {
		return BillResult{}, nil, err
	}
	if len(results) == 0 {
		return BillResult{}, matrix, nil
	}

	totalDaysAll := 0
	dayCounts := make([]int, len(results))
	for i, r := range results {
		days := daysBetweenInclusive(r.PeriodStartLocal, r.PeriodEndLocal)
		dayCounts[i] = days
		totalDaysAll += days
	}

	combined := BillResult{
		Month:            results[0].Month,
		PeriodStartLocal: results[0].PeriodStartLocal,
		PeriodEndLocal:   results[len(results)-1].PeriodEndLocal,
		LineItems:        make(map[string]decimal.Decimal),
		Gaps:             results[0].Gaps,
	}
	for i, r := range results {
		weight := decimal.NewFromInt(1)
		if totalDaysAll > 0 {
			weight = decimal.NewFromInt(int64(dayCounts[i])).Div(decimal.NewFromInt(int64(totalDaysAll)))
		}
		for chargeID, v := range r.LineItems {
			combined.LineItems[chargeID] = combined.LineItems[chargeID].Add(v.Mul(weight))
		}
	}
	total := decimal.Zero
	for _, v := range combined.LineItems {
		total = total.Add(v)
	}
	combined.TotalUSD = total.Round(2)
	return combined, matrix, nil
}

func daysBetweenInclusive(a, b CivilDate) int {
	ta := time.Date(a.Year, a.Month, a.Day, 0, 0, 0, 0, time.UTC)
	tb := time.Date(b.Year, b.Month, b.Day, 0, 0, 0, 0, time.UTC)
	return int(tb.Sub(ta).Hours()/24) + 1
}

func before(a, b CivilDate) bool {
	ta := time.Date(a.Year, a.Month, a.Day, 0, 0, 0, 0, time.UTC)
	tb := time.Date(b.Year, b.Month, b.Day, 0, 0, 0, 0, time.UTC)
	return ta.Before(tb)
}

func sortMonthKeys(keys []BillingMonthKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if a.Year > b.Year || (a.Year == b.Year && a.Month > b.Month) {
				keys[j-1], keys[j] = keys[j], keys[j-1]
			} else {
				break
			}
		}
	}
}
