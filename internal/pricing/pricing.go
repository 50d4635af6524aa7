package pricing

import "math"

// Fare model constants. Rates are flat per km; the pooling discount
// takes 10% off per additional co-rider, floored at 30% of the raw
// fare.
const (
	BaseFare          = 50.0
	PerKmRate         = 10.0
	DetourRatePerKm   = 5.0
	DiscountPerRider  = 0.1
	MinDiscountFactor = 0.3
)

// Price computes a rider's fare from their base trip distance, the
// detour billed to them, and the current pool size. Inputs are assumed
// non-negative; callers own validation. The result is non-increasing
// in poolSize and non-decreasing in both distances.
func Price(baseDistanceKm, detourKm float64, poolSize int) int {
	rawPrice := BaseFare + baseDistanceKm*PerKmRate + detourKm*DetourRatePerKm
	discountFactor := 1 - DiscountPerRider*float64(poolSize-1)
	if discountFactor < MinDiscountFactor {
		discountFactor = MinDiscountFactor
	}
	return int(math.Round(rawPrice * discountFactor))
}
