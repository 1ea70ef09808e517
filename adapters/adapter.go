// Package adapters holds the swap adapters a liquidator hands seized
// collateral to. The caller transfers amountIn of tokenIn to the adapter
// before calling Swap; the adapter returns amountOut of tokenOut to the
// caller or fails without side effects.
package adapters

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
)

var (
	ErrInsufficientOutput = errors.New("insufficient output amount")
	ErrTokenMismatch      = errors.New("token mismatch")
	ErrInvalidPath        = errors.New("invalid swap path")
	ErrInvalidRoute       = errors.New("invalid swap route")
)

// Adapter is the swap capability every adapter implements
type Adapter interface {
	Address() common.Address
	Swap(caller, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int, data []byte) (*big.Int, error)
}

// checkOutput enforces the adapter-level floor
func checkOutput(amountOut, minAmountOut *big.Int) error {
	if minAmountOut != nil && amountOut.Cmp(minAmountOut) < 0 {
		return fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutput, amountOut, minAmountOut)
	}
	return nil
}

// routerError maps a router's own floor failure onto ErrInsufficientOutput
func routerError(err error) error {
	if errors.Is(err, dex.ErrTooLittleReceived) {
		return fmt.Errorf("%w: %w", ErrInsufficientOutput, err)
	}
	return fmt.Errorf("router swap failed: %w", err)
}

// resolve looks up a deployed contract of type T
func resolve[T any](host *chain.Host, addr common.Address, what string) (T, error) {
	var zero T
	c, ok := host.Contract(addr)
	if !ok {
		return zero, fmt.Errorf("no %s deployed at %s", what, addr.Hex())
	}
	v, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("contract at %s is not a %s", addr.Hex(), what)
	}
	return v, nil
}
