package domain

import "github.com/shopspring/decimal"

// AllocateEnergy implements §4.4.1: cost[i] = mask[i] * energy[i] * rate.
// No cross-interval coupling.
func AllocateEnergy(charge EnergyCharge, mask []bool, usage []FilledInterval) []decimal.Decimal {
	cost := make([]decimal.Decimal, len(usage))
	for i, u := range usage {
		if !mask[i] {
			cost[i] = decimal.Zero
			continue
		}
		cost[i] = u.EnergyKWh.Mul(charge.RateUSDPerKWh)
	}
	return cost
}
