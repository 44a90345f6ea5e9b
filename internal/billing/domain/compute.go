package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// RequestPeriod is the inclusive local-date range a computation covers.
type RequestPeriod struct {
	StartLocal CivilDate
	EndLocal   CivilDate
}

// BillComputation is the result of compute_bill, per §6.
type BillComputation struct {
	Months        []BillResult
	GrandTotalUSD decimal.Decimal
	GapReport     map[BillingMonthKey]GapReport
	matrix        *CostMatrix
}

// CostMatrix exposes the sparse (interval_start_utc, charge_id) -> decimal
// mapping built during assembly.
func (c *BillComputation) CostMatrix() *CostMatrix { return c.matrix }

// ComputeBill is the core entry point described in §6. It is a pure
// function of its arguments: it performs no I/O, holds no locks, and
// mutates none of its inputs.
func ComputeBill(
	ctx context.Context,
	profile CustomerProfile,
	tariff Tariff,
	holidays []Holiday,
	usage []UsageInterval,
	period RequestPeriod,
	strategy GapStrategy,
) (*BillComputation, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := tariff.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateUsage(usage, profile.BillingIntervalMinutes); err != nil {
		return nil, err
	}
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	holidaySet := NewHolidaySet(holidays)
	grid, err := BuildTimeGrid(period.StartLocal, period.EndLocal, profile.Timezone, profile.BillingIntervalMinutes, holidaySet, profile.BillingDay)
	if err != nil {
		return nil, err
	}
	if len(grid.Intervals) == 0 {
		return nil, newInconsistencyErr("request period produced an empty time grid")
	}

	filled, gapReports, err := FillGaps(grid, usage, strategy, profile.BillingDay)
	if err != nil {
		return nil, err
	}
	if allMissing(filled) {
		return nil, newMissingDataErr("no usage observations at all within the requested period; %s cannot repair this", strategy)
	}

	var series []ChargeSeries
	for _, charge := range tariff.EnergyCharges {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		mask := EvaluateMask(grid, charge.Rules)
		series = append(series, ChargeSeries{Charge: charge, Cost: AllocateEnergy(charge, mask, filled)})
	}
	for _, charge := range tariff.DemandCharges {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		mask := EvaluateMask(grid, charge.Rules)
		cost, err := AllocateDemand(ctx, charge, mask, filled, grid, profile.BillingDay)
		if err != nil {
			return nil, err
		}
		series = append(series, ChargeSeries{Charge: charge, Cost: cost})
	}
	for _, charge := range tariff.CustomerCharges {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		series = append(series, ChargeSeries{Charge: charge, Cost: AllocateCustomer(charge, grid, profile.BillingDay)})
	}

	months, matrix, err := AssembleByBillingMonth(grid, series, gapReports)
	if err != nil {
		return nil, err
	}

	grandTotal := decimal.Zero
	for _, m := range months {
		grandTotal = grandTotal.Add(m.TotalUSD)
	}

	return &BillComputation{
		Months:        months,
		GrandTotalUSD: grandTotal,
		GapReport:     gapReports,
		matrix:        matrix,
	}, nil
}

func allMissing(filled []FilledInterval) bool {
	for _, f := range filled {
		if !f.Filled {
			return false
		}
	}
	return len(filled) > 0
}
