package resourcealgebra

import "math"

// thousand is the fixed-point scale factor applied to scalar resource
// values (CPU thousandths, memory MB) before addition/subtraction, so
// that repeated allocate/release cycles never accumulate float drift.
const thousand = 1000.0

// Epsilon is the tolerance used for Resources-level equality.
const Epsilon = 1e-8

// ToFixed converts a scalar value to its fixed-point (x1000) integer
// representation, rounding to the nearest thousandth.
func ToFixed(value float64) int64 {
	return int64(math.Round(value * thousand))
}

// FromFixed converts a fixed-point (x1000) integer back to a float64.
func FromFixed(fixed int64) float64 {
	whole := fixed / int64(thousand)
	frac := float64(fixed%int64(thousand)) / thousand
	return float64(whole) + frac
}

// AddScalarValue adds two scalar values via the fixed-point round trip.
func AddScalarValue(l, r float64) float64 {
	return FromFixed(ToFixed(l) + ToFixed(r))
}

// SubScalarValue subtracts two scalar values via the fixed-point round trip.
func SubScalarValue(l, r float64) float64 {
	return FromFixed(ToFixed(l) - ToFixed(r))
}

// ScalarEqual reports whether two scalar values are equal within Epsilon.
func ScalarEqual(l, r float64) bool {
	return math.Abs(l-r) < Epsilon
}

// ScalarLessEqual reports whether l <= r, treating near-equal values
// (within Epsilon) as equal rather than less.
func ScalarLessEqual(l, r float64) bool {
	if ScalarEqual(l, r) {
		return true
	}
	return l < r
}
