package uniswap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

type rateKey struct {
	tokenIn  common.Address
	tokenOut common.Address
	fee      uint32
}

// Router swaps at configured fixed rates. Output is paid from the
// router's own token balance.
type Router struct {
	host    *chain.Host
	address common.Address
	rates   map[rateKey]dex.Rate
	logger  *zap.Logger
}

// NewRouter deploys a router at address
func NewRouter(host *chain.Host, address common.Address, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	r := &Router{
		host:    host,
		address: address,
		rates:   make(map[rateKey]dex.Rate),
		logger:  logger,
	}
	if err := host.Deploy(address, r); err != nil {
		return nil, fmt.Errorf("failed to deploy router: %w", err)
	}
	return r, nil
}

// Address returns the router address
func (r *Router) Address() common.Address {
	return r.address
}

// SetRate configures the tokenIn -> tokenOut rate at a fee tier
func (r *Router) SetRate(tokenIn, tokenOut common.Address, fee uint32, rate dex.Rate) error {
	if !dex.ValidFeeTier(fee) {
		return fmt.Errorf("%w: %d", dex.ErrInvalidFeeTier, fee)
	}
	if err := rate.Validate(); err != nil {
		return err
	}
	r.rates[rateKey{tokenIn: tokenIn, tokenOut: tokenOut, fee: fee}] = rate
	return nil
}

// Quote returns the output for amountIn through one pool
func (r *Router) Quote(tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	rate, ok := r.rates[rateKey{tokenIn: tokenIn, tokenOut: tokenOut, fee: fee}]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s at %d", dex.ErrNoRate, tokenIn.Hex(), tokenOut.Hex(), fee)
	}
	return rate.Apply(amountIn), nil
}

// ExactInputSingle swaps through one pool
func (r *Router) ExactInputSingle(caller common.Address, params dex.ExactInputSingleParams) (*big.Int, error) {
	var amountOut *big.Int
	err := r.host.Call(func() error {
		out, err := r.Quote(params.TokenIn, params.TokenOut, params.Fee, params.AmountIn)
		if err != nil {
			return err
		}
		if err := r.settle(caller, params.TokenIn, params.TokenOut, params.Recipient, params.AmountIn, out, params.AmountOutMinimum); err != nil {
			return err
		}
		amountOut = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// ExactInput swaps along a packed path
func (r *Router) ExactInput(caller common.Address, params dex.ExactInputParams) (*big.Int, error) {
	tokens, fees, err := routing.DecodePath(params.Path)
	if err != nil {
		return nil, err
	}

	var amountOut *big.Int
	err = r.host.Call(func() error {
		out := new(big.Int).Set(params.AmountIn)
		for i, fee := range fees {
			if out, err = r.Quote(tokens[i], tokens[i+1], fee, out); err != nil {
				return err
			}
		}
		if err := r.settle(caller, tokens[0], tokens[len(tokens)-1], params.Recipient, params.AmountIn, out, params.AmountOutMinimum); err != nil {
			return err
		}
		amountOut = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

func (r *Router) settle(caller, tokenIn, tokenOut, recipient common.Address, amountIn, amountOut, minimum *big.Int) error {
	if minimum != nil && amountOut.Cmp(minimum) < 0 {
		return fmt.Errorf("%w: %s < %s", dex.ErrTooLittleReceived, amountOut, minimum)
	}
	if err := r.host.Token(tokenIn).TransferFrom(r.address, caller, r.address, amountIn); err != nil {
		return fmt.Errorf("failed to pull input: %w", err)
	}
	if err := r.host.Token(tokenOut).Transfer(r.address, recipient, amountOut); err != nil {
		return fmt.Errorf("failed to pay output: %w", err)
	}
	r.logger.Debug("Swap settled",
		zap.String("tokenIn", tokenIn.Hex()),
		zap.String("tokenOut", tokenOut.Hex()),
		zap.String("amountIn", amountIn.String()),
		zap.String("amountOut", amountOut.String()))
	return nil
}
