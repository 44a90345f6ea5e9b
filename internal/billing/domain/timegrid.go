package domain

import (
	"time"

	_ "time/tzdata"
)

// IntervalMeta is one row of the shared interval index built by TimeGrid.
// Every per-charge cost series and mask is aligned to this index by
// position, not by map lookup, following the columnar layout described in
// SPEC_FULL.md §9.
type IntervalMeta struct {
	UTCStart    time.Time
	UTCEnd      time.Time
	LocalStart  time.Time
	LocalEnd    time.Time
	DayClass    DayClass
	BillingMonth BillingMonthKey
}

// TimeGrid is the ordered interval index for a billing computation.
type TimeGrid struct {
	Intervals []IntervalMeta
	Location  *time.Location
	Step      time.Duration
}

// BuildTimeGrid constructs the interval index covering [startLocal, endLocal]
// inclusive, per §4.1. startLocal and endLocal are civil dates; the grid
// covers every interval whose local start falls on or after startLocal's
// midnight and strictly before the midnight following endLocal.
func BuildTimeGrid(startLocal, endLocal CivilDate, tz string, stepMinutes int, holidays HolidaySet, billingDay int) (*TimeGrid, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, newZoneUnknownErr("unknown timezone %q: %v", tz, err)
	}
	if stepMinutes <= 0 || 1440%stepMinutes != 0 {
		return nil, newInconsistencyErr("invalid step: %d minutes must evenly divide 1440", stepMinutes)
	}

	step := time.Duration(stepMinutes) * time.Minute

	// The grid is built by stepping uniformly through UTC instants between
	// the two local midnights, then labelling each instant with its local
	// projection. This sidesteps wall-clock arithmetic across a DST
	// transition entirely: a spring-forward gap simply never appears as a
	// local_start value (the UTC instant that would have produced it lands
	// on the post-transition offset instead), and a fall-back repeat stays
	// distinguishable because the two physical occurrences carry different
	// UTC timestamps even though their local_start values are equal.
	startUTC := time.Date(startLocal.Year, startLocal.Month, startLocal.Day, 0, 0, 0, 0, loc).UTC()
	endUTC := time.Date(endLocal.Year, endLocal.Month, endLocal.Day, 0, 0, 0, 0, loc).AddDate(0, 0, 1).UTC()

	grid := &TimeGrid{Location: loc, Step: step}
	for cursor := startUTC; cursor.Before(endUTC); cursor = cursor.Add(step) {
		utcStart := cursor
		utcEnd := cursor.Add(step)
		localStart := utcStart.In(loc)
		localEnd := utcEnd.In(loc)

		date := CivilDate{Year: localStart.Year(), Month: localStart.Month(), Day: localStart.Day()}
		dayClass := classifyDay(date, localStart.Weekday(), holidays)
		monthKey := BillingMonthFor(localStart, billingDay)

		grid.Intervals = append(grid.Intervals, IntervalMeta{
			UTCStart:     utcStart,
			UTCEnd:       utcEnd,
			LocalStart:   localStart,
			LocalEnd:     localEnd,
			DayClass:     dayClass,
			BillingMonth: monthKey,
		})
	}
	return grid, nil
}

func classifyDay(date CivilDate, weekday time.Weekday, holidays HolidaySet) DayClass {
	if holidays.Contains(date) {
		return DayHoliday
	}
	if weekday == time.Saturday || weekday == time.Sunday {
		return DayWeekend
	}
	return DayWeekday
}

// BillingMonthFor returns the billing month that contains localStart, given
// the customer's billing_day. TimeGrid uses it to assign every interval's
// BillingMonth key; the allocators group by that key and count a month's
// days with DaysInBillingMonth, which is built on BillingMonthWindow.
func BillingMonthFor(localStart time.Time, billingDay int) BillingMonthKey {
	year, month := localStart.Year(), localStart.Month()
	closingDay := lastDayOfMonthCapped(year, month, billingDay)
	closingMoment := time.Date(year, month, closingDay, 23, 59, 59, 999999999, localStart.Location())
	if !localStart.After(closingMoment) {
		return BillingMonthKey{Year: year, Month: month}
	}
	nextMonth := month + 1
	nextYear := year
	if nextMonth > 12 {
		nextMonth = 1
		nextYear++
	}
	return BillingMonthKey{Year: nextYear, Month: nextMonth}
}

// BillingMonthWindow returns the half-open local window
// [start, end) for the billing month identified by key, under the
// customer's billing_day, in loc.
func BillingMonthWindow(key BillingMonthKey, billingDay int, loc *time.Location) (start, end time.Time) {
	end = closingMidnight(key.Year, key.Month, billingDay, loc)
	prevMonth := key.Month - 1
	prevYear := key.Year
	if prevMonth < 1 {
		prevMonth = 12
		prevYear--
	}
	start = closingMidnight(prevYear, prevMonth, billingDay, loc)
	return start, end
}

// closingMidnight returns the local midnight immediately following the
// closing day of the billing month whose closing calendar month is
// (year, month).
func closingMidnight(year int, month time.Month, billingDay int, loc *time.Location) time.Time {
	closingDay := lastDayOfMonthCapped(year, month, billingDay)
	return time.Date(year, month, closingDay, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

func lastDayOfMonthCapped(year int, month time.Month, billingDay int) int {
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if billingDay > daysInMonth {
		return daysInMonth
	}
	return billingDay
}

// DaysInBillingMonth returns the number of calendar days spanned by the
// billing month identified by key.
func DaysInBillingMonth(key BillingMonthKey, billingDay int, loc *time.Location) int {
	start, end := BillingMonthWindow(key, billingDay, loc)
	days := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}
