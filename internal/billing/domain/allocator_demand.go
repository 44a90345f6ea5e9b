package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AllocateDemand implements §4.4.3, the hardest of the three allocators: it
// detects the peak qualifying interval within each scope and spreads the
// scope's monetary contribution equally across every interval tied at that
// peak, per the exact-decimal tie policy. cancellation is checked once per
// scope, per §5 ("checked between charges and between scopes within
// DemandAllocator").
func AllocateDemand(ctx context.Context, charge DemandCharge, mask []bool, usage []FilledInterval, grid *TimeGrid, billingDay int) ([]decimal.Decimal, error) {
	cost := make([]decimal.Decimal, len(grid.Intervals))

	if charge.PeakType == ChargeDaily {
		groups, order := groupByDay(grid)
		for _, day := range order {
			if err := checkCancel(ctx); err != nil {
				return nil, err
			}
			idxs := groups[day]
			dayStart := time.Date(day.Year, day.Month, day.Day, 0, 0, 0, 0, grid.Location)
			intervalsPerDay := int(dayStart.AddDate(0, 0, 1).Sub(dayStart) / grid.Step)
			factor := decimal.NewFromInt(1)
			if len(idxs) < intervalsPerDay {
				factor = decimal.NewFromInt(int64(len(idxs))).Div(decimal.NewFromInt(int64(intervalsPerDay)))
			}
			applyDemandScope(cost, idxs, mask, usage, charge.RateUSDPerKW, factor)
		}
		return cost, nil
	}

	groups, order := groupByBillingMonth(grid)
	for _, key := range order {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		idxs := groups[key]
		totalDays := DaysInBillingMonth(key, billingDay, grid.Location)
		covered := distinctLocalDays(grid, idxs)
		var factor decimal.Decimal
		if totalDays == 0 {
			factor = decimal.Zero
		} else {
			factor = decimal.NewFromInt(int64(covered)).Div(decimal.NewFromInt(int64(totalDays)))
		}
		applyDemandScope(cost, idxs, mask, usage, charge.RateUSDPerKW, factor)
	}
	return cost, nil
}

func applyDemandScope(cost []decimal.Decimal, idxs []int, mask []bool, usage []FilledInterval, rate, factor decimal.Decimal) {
	var peak decimal.Decimal
	found := false
	for _, i := range idxs {
		if !mask[i] {
			continue
		}
		v := usage[i].PeakDemandKW
		if !found || v.GreaterThan(peak) {
			peak = v
			found = true
		}
	}
	if !found {
		return
	}

	var tied []int
	for _, i := range idxs {
		if mask[i] && usage[i].PeakDemandKW.Equal(peak) {
			tied = append(tied, i)
		}
	}
	if len(tied) == 0 {
		return
	}

	contribution := peak.Mul(rate).Mul(factor)
	share := contribution.Div(decimal.NewFromInt(int64(len(tied))))
	for _, i := range tied {
		cost[i] = cost[i].Add(share)
	}
}

func groupByDay(grid *TimeGrid) (map[CivilDate][]int, []CivilDate) {
	groups := make(map[CivilDate][]int)
	var order []CivilDate
	for i, meta := range grid.Intervals {
		d := CivilDate{Year: meta.LocalStart.Year(), Month: meta.LocalStart.Month(), Day: meta.LocalStart.Day()}
		if _, ok := groups[d]; !ok {
			order = append(order, d)
		}
		groups[d] = append(groups[d], i)
	}
	return groups, order
}

func groupByBillingMonth(grid *TimeGrid) (map[BillingMonthKey][]int, []BillingMonthKey) {
	groups := make(map[BillingMonthKey][]int)
	var order []BillingMonthKey
	for i, meta := range grid.Intervals {
		key := meta.BillingMonth
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	return groups, order
}

func distinctLocalDays(grid *TimeGrid, idxs []int) int {
	seen := make(map[CivilDate]bool)
	for _, i := range idxs {
		ls := grid.Intervals[i].LocalStart
		seen[CivilDate{Year: ls.Year(), Month: ls.Month(), Day: ls.Day()}] = true
	}
	return len(seen)
}

func checkCancel(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return newCancelledErr()
	default:
		return nil
	}
}
