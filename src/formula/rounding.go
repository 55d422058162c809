package formula

import (
	"math"

	"price-relay/src/models"
)

// -----------------------------------------------------------------------------

// RoundValue applies a product's rounding policy. Method "none" or a zero
// precision only clamps to DecimalPlaces. Otherwise the value is divided
// by the precision, ceiled/floored/rounded per the method, multiplied back,
// then clamped to DecimalPlaces.
func RoundValue(v float64, policy models.MRounding) float64 {
	if policy.Method != "none" && policy.Method != "" && policy.Precision > 0 {
		scaled := v / policy.Precision
		switch policy.Method {
		case "up":
			scaled = math.Ceil(scaled)
		case "down":
			scaled = math.Floor(scaled)
		case "nearest":
			scaled = math.Round(scaled)
		}
		v = scaled * policy.Precision
	}

	return fixDecimals(v, policy.DecimalPlaces)
}

// -----------------------------------------------------------------------------

// fixDecimals clamps a value to the given number of decimal places,
// rounding the last digit half away from zero.
func fixDecimals(v float64, decimalPlaces int) float64 {
	if decimalPlaces < 0 {
		decimalPlaces = 0
	}
	factor := math.Pow(10, float64(decimalPlaces))
	return math.Round(v*factor) / factor
}
