package adapters

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

// UniswapV3 routes through a Uniswap V3 style router, single pool or
// packed path depending on the payload
type UniswapV3 struct {
	host    *chain.Host
	address common.Address
	router  dex.SwapRouter
	logger  *zap.Logger
}

// NewUniswapV3 deploys an adapter at address bound to the router deployed
// at routerAddr
func NewUniswapV3(host *chain.Host, address, routerAddr common.Address, logger *zap.Logger) (*UniswapV3, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	router, err := resolve[dex.SwapRouter](host, routerAddr, "swap router")
	if err != nil {
		return nil, err
	}
	a := &UniswapV3{host: host, address: address, router: router, logger: logger}
	if err := host.Deploy(address, a); err != nil {
		return nil, fmt.Errorf("failed to deploy uniswap v3 adapter: %w", err)
	}
	return a, nil
}

func (a *UniswapV3) Address() common.Address {
	return a.address
}

// Swap decodes (isMultiHop, pathOrFee) and swaps amountIn through the
// router, paying the output straight to caller
func (a *UniswapV3) Swap(caller, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int, data []byte) (*big.Int, error) {
	payload, err := routing.DecodeUniswapV3(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}
	if payload.MultiHop {
		tokens, _, err := routing.DecodePath(payload.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
		}
		if tokens[0] != tokenIn || tokens[len(tokens)-1] != tokenOut {
			return nil, fmt.Errorf("%w: path %s..%s, swap %s..%s", ErrInvalidPath,
				tokens[0].Hex(), tokens[len(tokens)-1].Hex(), tokenIn.Hex(), tokenOut.Hex())
		}
	}

	var amountOut *big.Int
	err = a.host.Call(func() error {
		if err := a.host.Token(tokenIn).Approve(a.address, a.router.Address(), amountIn); err != nil {
			return err
		}

		var out *big.Int
		var err error
		if payload.MultiHop {
			out, err = a.router.ExactInput(a.address, dex.ExactInputParams{
				Path:             payload.Path,
				Recipient:        caller,
				AmountIn:         amountIn,
				AmountOutMinimum: minAmountOut,
			})
		} else {
			out, err = a.router.ExactInputSingle(a.address, dex.ExactInputSingleParams{
				TokenIn:          tokenIn,
				TokenOut:         tokenOut,
				Fee:              payload.Fee,
				Recipient:        caller,
				AmountIn:         amountIn,
				AmountOutMinimum: minAmountOut,
			})
		}
		if err != nil {
			return routerError(err)
		}
		if err := checkOutput(out, minAmountOut); err != nil {
			return err
		}
		amountOut = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Uniswap V3 swap",
		zap.Bool("multiHop", payload.MultiHop),
		zap.String("amountIn", amountIn.String()),
		zap.String("amountOut", amountOut.String()))
	return amountOut, nil
}
