package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocateCustomer implements §4.4.2. Customer charges ignore masks.
//
// Both the monthly and daily cases resolve the "daily customer charge
// across partial boundary day" open question (§9) the same way: the
// per-interval share is always amount_usd divided by the interval count of
// the FULL scope (the full billing month for monthly, the full calendar
// day for daily), never by the count of intervals actually present in the
// request. A day or month that is only partially present in the TimeGrid
// then naturally contributes only its covered share, proportional to
// covered-interval-fraction-of-scope, and a fully covered scope sums back
// to exactly amount_usd.
func AllocateCustomer(charge CustomerCharge, grid *TimeGrid, billingDay int) []decimal.Decimal {
	cost := make([]decimal.Decimal, len(grid.Intervals))
	stepMinutes := int(grid.Step / time.Minute)
	if stepMinutes <= 0 {
		return cost
	}

	if charge.ChargeType == ChargeMonthly {
		monthDenom := make(map[BillingMonthKey]decimal.Decimal)
		for _, meta := range grid.Intervals {
			key := meta.BillingMonth
			if _, ok := monthDenom[key]; ok {
				continue
			}
			start, end := BillingMonthWindow(key, billingDay, grid.Location)
			monthDenom[key] = decimal.NewFromInt(int64(end.Sub(start) / grid.Step))
		}
		for i, meta := range grid.Intervals {
			denom := monthDenom[meta.BillingMonth]
			if denom.IsZero() {
				continue
			}
			cost[i] = charge.AmountUSD.Div(denom)
		}
		return cost
	}

	// Daily.
	dayDenom := make(map[CivilDate]decimal.Decimal)
	for i, meta := range grid.Intervals {
		ls := meta.LocalStart
		day := CivilDate{Year: ls.Year(), Month: ls.Month(), Day: ls.Day()}
		if _, ok := dayDenom[day]; !ok {
			dayStart := time.Date(day.Year, day.Month, day.Day, 0, 0, 0, 0, grid.Location)
			dayDenom[day] = decimal.NewFromInt(int64(dayStart.AddDate(0, 0, 1).Sub(dayStart) / grid.Step))
		}
		cost[i] = charge.AmountUSD.Div(dayDenom[day])
	}
	return cost
}
