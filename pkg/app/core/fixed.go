package core

import "math/big"

// Wide intermediates go through big.Int so that amount*price products
// cannot overflow int64 before the scale division.

// Notional converts a base-asset quantity and a PriceScale-scaled price to
// quote-asset units, rounding down.
func Notional(quantity, price int64) int64 {
	n := new(big.Int).Mul(big.NewInt(quantity), big.NewInt(price))
	n.Quo(n, big.NewInt(PriceScale))
	return n.Int64()
}

// RatioBps computes num/den in basis points, rounding down.
// The second return is false when den == 0 (ratio is unbounded).
func RatioBps(num, den int64) (int64, bool) {
	if den == 0 {
		return 0, false
	}
	r := new(big.Int).Mul(big.NewInt(num), big.NewInt(BpsDenom))
	r.Quo(r, big.NewInt(den))
	if !r.IsInt64() {
		// Ratio beyond int64 bps is safely above any threshold.
		return int64(^uint64(0) >> 1), true
	}
	return r.Int64(), true
}

// ApplyBps scales amount by a basis-point fraction, rounding down.
func ApplyBps(amount, bps int64) int64 {
	n := new(big.Int).Mul(big.NewInt(amount), big.NewInt(bps))
	n.Quo(n, big.NewInt(BpsDenom))
	return n.Int64()
}

// Min returns the smaller of two int64 amounts.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
