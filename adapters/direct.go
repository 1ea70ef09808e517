package adapters

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
)

// Direct returns the input unchanged. It is only valid when the seized
// collateral already is the debt asset.
type Direct struct {
	host    *chain.Host
	address common.Address
	logger  *zap.Logger
}

// NewDirect deploys a passthrough adapter at address
func NewDirect(host *chain.Host, address common.Address, logger *zap.Logger) (*Direct, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	a := &Direct{host: host, address: address, logger: logger}
	if err := host.Deploy(address, a); err != nil {
		return nil, fmt.Errorf("failed to deploy direct adapter: %w", err)
	}
	return a, nil
}

func (a *Direct) Address() common.Address {
	return a.address
}

// Swap sends amountIn of tokenIn back to caller
func (a *Direct) Swap(caller, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int, _ []byte) (*big.Int, error) {
	if tokenIn != tokenOut {
		return nil, fmt.Errorf("%w: %s != %s", ErrTokenMismatch, tokenIn.Hex(), tokenOut.Hex())
	}
	if err := checkOutput(amountIn, minAmountOut); err != nil {
		return nil, err
	}
	err := a.host.Call(func() error {
		return a.host.Token(tokenOut).Transfer(a.address, caller, amountIn)
	})
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(amountIn), nil
}
