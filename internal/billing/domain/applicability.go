package domain

import "time"

// EvaluateRule emits a boolean mask of length len(grid.Intervals), one bit
// per interval, true where the rule's predicate (§4.3) holds.
func EvaluateRule(grid *TimeGrid, rule ApplicabilityRule) []bool {
	mask := make([]bool, len(grid.Intervals))
	for i, meta := range grid.Intervals {
		mask[i] = ruleMatches(rule, meta)
	}
	return mask
}

// EvaluateMask computes the OR-composed mask across every rule in rules,
// per §4.3's "effective mask is the bitwise OR". A charge with zero rules
// always matches (§3: "Either both bounds may be absent, meaning
// year-round" generalised to "no rules at all means always").
func EvaluateMask(grid *TimeGrid, rules []ApplicabilityRule) []bool {
	mask := make([]bool, len(grid.Intervals))
	if len(rules) == 0 {
		for i := range mask {
			mask[i] = true
		}
		return mask
	}
	for _, rule := range rules {
		ruleMask := EvaluateRule(grid, rule)
		for i, v := range ruleMask {
			mask[i] = mask[i] || v
		}
	}
	return mask
}

func ruleMatches(rule ApplicabilityRule, meta IntervalMeta) bool {
	if !timeOfDayMatches(rule, meta.LocalStart) {
		return false
	}
	if !monthDayMatches(rule, meta.LocalStart) {
		return false
	}
	return dayClassMatches(rule, meta.DayClass)
}

func timeOfDayMatches(rule ApplicabilityRule, localStart time.Time) bool {
	tod := TimeOfDay{Hour: localStart.Hour(), Minute: localStart.Minute()}
	if rule.PeriodStartLocal.Equal(rule.PeriodEndLocal) {
		// period_start == period_end: the all-day sentinel per §4.3.1.
		return true
	}
	return tod.minutes() >= rule.PeriodStartLocal.minutes() && tod.minutes() < rule.PeriodEndLocal.minutes()
}

func monthDayMatches(rule ApplicabilityRule, localStart time.Time) bool {
	if rule.AppliesStartMD.IsZero() && rule.AppliesEndMD.IsZero() {
		return true
	}
	current := MonthDay{Month: localStart.Month(), Day: localStart.Day()}.normalized()
	start := rule.AppliesStartMD.normalized()
	end := rule.AppliesEndMD.normalized()

	if !end.Before(start) {
		return !current.Before(start) && !current.After(end)
	}
	// Wraps the year boundary, e.g. Oct 1 - May 31.
	return !current.Before(start) || !current.After(end)
}

func dayClassMatches(rule ApplicabilityRule, class DayClass) bool {
	switch class {
	case DayHoliday:
		return rule.AppliesHolidays
	case DayWeekend:
		return rule.AppliesWeekends
	default:
		return rule.AppliesWeekdays
	}
}
