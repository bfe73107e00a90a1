package shared

import "math"

// AddQuantity returns a+b for non-negative unit counts and false when the
// sum does not fit in an int64.
func AddQuantity(a, b int64) (int64, bool) {
	if b > math.MaxInt64-a {
		return 0, false
	}
	return a + b, true
}

// MulQuantity returns a*b for non-negative unit counts and false when the
// product does not fit in an int64.
func MulQuantity(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}
