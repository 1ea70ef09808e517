package dex

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

// Fee tiers, in hundredths of a basis point
const (
	FeeLowest uint32 = 100
	FeeLow    uint32 = 500
	FeeMedium uint32 = 3000
	FeeHigh   uint32 = 10000
)

var (
	ErrInvalidFeeTier    = errors.New("invalid fee tier")
	ErrPoolExists        = errors.New("pool already exists")
	ErrIdenticalTokens   = errors.New("identical tokens")
	ErrFlashNotRepaid    = errors.New("flash not repaid")
	ErrNoFlashCallback   = errors.New("caller does not implement the flash callback")
	ErrPoolLocked        = errors.New("pool locked")
	ErrTooLittleReceived = errors.New("too little received")
	ErrNoRate            = errors.New("no rate configured")
)

// FeeTiers returns the enumerated fee tiers
func FeeTiers() []uint32 {
	return []uint32{FeeLowest, FeeLow, FeeMedium, FeeHigh}
}

// ValidFeeTier reports whether fee is one of the enumerated tiers
func ValidFeeTier(fee uint32) bool {
	switch fee {
	case FeeLowest, FeeLow, FeeMedium, FeeHigh:
		return true
	}
	return false
}

// SortTokens returns the pair in pool order
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// Factory looks up pools by pair and fee tier
type Factory interface {
	Address() common.Address
	// GetPool returns the zero address when no pool exists
	GetPool(tokenA, tokenB common.Address, fee uint32) common.Address
}

// FlashPool lends both of its tokens for the duration of a callback
type FlashPool interface {
	Address() common.Address
	Token0() common.Address
	Token1() common.Address
	Fee() uint32
	// Flash sends the amounts to recipient, calls back into caller and
	// requires both balances to have grown by the fee on return
	Flash(caller, recipient common.Address, amount0, amount1 *big.Int, data []byte) error
}

// FlashCallback is implemented by contracts that request a flash
type FlashCallback interface {
	UniswapV3FlashCallback(caller common.Address, fee0, fee1 *big.Int, data []byte) error
}

// ExactInputSingleParams describes a single-pool exact input swap
type ExactInputSingleParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// ExactInputParams describes a packed-path exact input swap
type ExactInputParams struct {
	Path             []byte
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// SwapRouter is a Uniswap V3 style router. Inputs are pulled from caller
// via allowance.
type SwapRouter interface {
	Address() common.Address
	ExactInputSingle(caller common.Address, params ExactInputSingleParams) (*big.Int, error)
	ExactInput(caller common.Address, params ExactInputParams) (*big.Int, error)
}

// MultiHopRouter executes a multi-router plan, pulling amountIn of
// tokens[0] from caller and paying the last token back to caller
type MultiHopRouter interface {
	Address() common.Address
	ExecuteMultiHopSwap(caller common.Address, tokens []common.Address, amountIn, minAmountOut *big.Int, hops [][]routing.Hop) (*big.Int, error)
}
