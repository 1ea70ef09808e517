package dex

import (
	"fmt"
	"math/big"
)

// Rate is a fixed exchange rate Num/Den of output units per input unit
type Rate struct {
	Num *big.Int
	Den *big.Int
}

// NewRate builds a rate from small integers
func NewRate(num, den int64) Rate {
	return Rate{Num: big.NewInt(num), Den: big.NewInt(den)}
}

// Validate rejects rates that cannot be applied
func (r Rate) Validate() error {
	if r.Num == nil || r.Den == nil || r.Num.Sign() < 0 || r.Den.Sign() <= 0 {
		return fmt.Errorf("invalid rate %v/%v", r.Num, r.Den)
	}
	return nil
}

// Apply converts amountIn at the rate, rounding down
func (r Rate) Apply(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, r.Num)
	return out.Quo(out, r.Den)
}
