package bigmath

import (
	"math/big"
)

// BasisPoints is the denominator for fees and bonuses expressed in bps
const BasisPoints = 10000

// FeeDenominator is the denominator of Uniswap V3 style fee tiers (hundredths of a bip)
const FeeDenominator = 1_000_000

// Clone returns a copy of x, treating nil as zero
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// IsZero returns true if x is nil or zero
func IsZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}

// Min returns a copy of the smaller of x and y
func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return Clone(x)
	}
	return Clone(y)
}

// SubFloor returns x - y, or zero when y > x
func SubFloor(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(x, y)
}

// MulDiv computes x * y / d rounding down
func MulDiv(x, y, d *big.Int) *big.Int {
	z := new(big.Int).Mul(x, y)
	return z.Quo(z, d)
}

// MulDivUp computes x * y / d rounding up
func MulDivUp(x, y, d *big.Int) *big.Int {
	z := new(big.Int).Mul(x, y)
	q, r := new(big.Int).QuoRem(z, d, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// PercentMul applies a basis-point rate to amount, rounding half up
func PercentMul(amount *big.Int, bps uint64) *big.Int {
	z := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	z.Add(z, big.NewInt(BasisPoints/2))
	return z.Quo(z, big.NewInt(BasisPoints))
}

// CalculateFlashFee computes a pool flash fee for a fee tier in hundredths of a bip
func CalculateFlashFee(amount *big.Int, feeTier uint32) *big.Int {
	if IsZero(amount) {
		return new(big.Int)
	}
	return MulDivUp(amount, new(big.Int).SetUint64(uint64(feeTier)), big.NewInt(FeeDenominator))
}

// Pow10 returns 10^n
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Sum adds every value, skipping nils
func Sum(values ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}
