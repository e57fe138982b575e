package vault

import "math/big"

// BpsDenominator is the basis-point scale used for weights, ratios, and APY.
const BpsDenominator = 10000

// mulDiv returns floor(a*b/c) using big.Int so the intermediate product
// cannot overflow int64. c must be non-zero; callers special-case empty
// pools before converting.
func mulDiv(a, b, c int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	n.Quo(n, big.NewInt(c))
	return n.Int64()
}

// applyBps returns floor(amount*bps/10000).
func applyBps(amount, bps int64) int64 {
	return mulDiv(amount, bps, BpsDenominator)
}
