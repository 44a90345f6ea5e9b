package domain

import "github.com/shopspring/decimal"

// MaxRatePrecision is the maximum number of fractional decimal digits
// accepted for a monetary rate on ingest, per §4.6. Storage itself uses
// decimal.Decimal's arbitrary precision; this limit is enforced only at the
// DTO/validation boundary described by §4.6, not inside the core
// allocators, which never round until BillAssembler's final total.
const MaxRatePrecision = 5

// ValidateRatePrecision rejects rates carrying more than MaxRatePrecision
// fractional digits, per §4.6 ("Energy rate precision ≤ 5 decimals;
// demand/customer ≤ 5 decimals").
func ValidateRatePrecision(label string, rate decimal.Decimal) error {
	if rate.Exponent() < -MaxRatePrecision {
		return newValidationErr("%s: rate has more than %d fractional digits", label, MaxRatePrecision)
	}
	return nil
}

// Equivalent compares two tariffs field-by-field (rules, rates, dates,
// flags), used by the YAML round-trip test (invariant 10, §8) instead of
// relying on reflect.DeepEqual across possibly-reordered slices, per
// SPEC_FULL.md §12.
func Equivalent(a, b Tariff) bool {
	if a.Utility != b.Utility || a.Name != b.Name {
		return false
	}
	if len(a.EnergyCharges) != len(b.EnergyCharges) ||
		len(a.DemandCharges) != len(b.DemandCharges) ||
		len(a.CustomerCharges) != len(b.CustomerCharges) {
		return false
	}
	energyByName := indexEnergy(b.EnergyCharges)
	for _, ec := range a.EnergyCharges {
		other, ok := energyByName[ec.Name]
		if !ok || !ec.RateUSDPerKWh.Equal(other.RateUSDPerKWh) || !rulesEquivalent(ec.Rules, other.Rules) {
			return false
		}
	}
	demandByName := indexDemand(b.DemandCharges)
	for _, dc := range a.DemandCharges {
		other, ok := demandByName[dc.Name]
		if !ok || dc.PeakType != other.PeakType || !dc.RateUSDPerKW.Equal(other.RateUSDPerKW) || !rulesEquivalent(dc.Rules, other.Rules) {
			return false
		}
	}
	customerByName := indexCustomer(b.CustomerCharges)
	for _, cc := range a.CustomerCharges {
		other, ok := customerByName[cc.Name]
		if !ok || cc.ChargeType != other.ChargeType || !cc.AmountUSD.Equal(other.AmountUSD) {
			return false
		}
	}
	return true
}

func indexEnergy(charges []EnergyCharge) map[string]EnergyCharge {
	out := make(map[string]EnergyCharge, len(charges))
	for _, c := range charges {
		out[c.Name] = c
	}
	return out
}

func indexDemand(charges []DemandCharge) map[string]DemandCharge {
	out := make(map[string]DemandCharge, len(charges))
	for _, c := range charges {
		out[c.Name] = c
	}
	return out
}

func indexCustomer(charges []CustomerCharge) map[string]CustomerCharge {
	out := make(map[string]CustomerCharge, len(charges))
	for _, c := range charges {
		out[c.Name] = c
	}
	return out
}

func rulesEquivalent(a, b []ApplicabilityRule) bool {
	if len(a) != len(b) {
		return false
	}
	byName := make(map[string]ApplicabilityRule, len(b))
	for _, r := range b {
		byName[r.Name] = r
	}
	for _, r := range a {
		other, ok := byName[r.Name]
		if !ok {
			return false
		}
		if !r.PeriodStartLocal.Equal(other.PeriodStartLocal) || !r.PeriodEndLocal.Equal(other.PeriodEndLocal) {
			return false
		}
		if r.AppliesStartMD != other.AppliesStartMD || r.AppliesEndMD != other.AppliesEndMD {
			return false
		}
		if r.AppliesWeekdays != other.AppliesWeekdays || r.AppliesWeekends != other.AppliesWeekends || r.AppliesHolidays != other.AppliesHolidays {
			return false
		}
	}
	return true
}
