package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Source is the flash-borrowing mechanism a liquidator uses. It is fixed
// when the liquidator is deployed.
type Source uint8

const (
	SourceDexFlashSwap Source = iota
	SourceLendingPool
)

func (s Source) String() string {
	switch s {
	case SourceDexFlashSwap:
		return "dex_flash_swap"
	case SourceLendingPool:
		return "lending_pool_flash_loan"
	default:
		return "unknown"
	}
}

// SourceFor picks the DEX flash swap when a factory is configured and the
// lending pool flash loan otherwise
func SourceFor(factory common.Address) Source {
	if factory != (common.Address{}) {
		return SourceDexFlashSwap
	}
	return SourceLendingPool
}

// ReserveData is the lending pool's view of one reserve
type ReserveData struct {
	Asset             common.Address
	AToken            common.Address
	VariableDebtToken common.Address
	Decimals          uint8
	// Price in the base currency, 8 decimals
	Price *big.Int
	// LiquidationBonus in bps, 10500 is a 5% bonus
	LiquidationBonus uint64
	// LiquidationThreshold in bps
	LiquidationThreshold uint64
}

// DefaultPremiumBps is the flash loan premium of an Aave V3 pool
const DefaultPremiumBps = 9

// CloseFactorBps caps the share of a position's debt one liquidation may repay
const CloseFactorBps = 5000
