// Package liquidswap is an in-memory multi-router aggregator. A plan is a
// list of hop levels; allocations within a level are split across
// underlying routers, each quoted at a configured fixed rate.
package liquidswap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

var (
	ErrEmptyPlan      = errors.New("empty swap plan")
	ErrAmountMismatch = errors.New("first hop level does not sum to amount in")
	ErrTokenMismatch  = errors.New("hop tokens do not follow the token list")
)

type rateKey struct {
	routerIndex uint8
	tokenIn     common.Address
	tokenOut    common.Address
}

// Router executes multi-router plans
type Router struct {
	host    *chain.Host
	address common.Address
	rates   map[rateKey]dex.Rate
	logger  *zap.Logger
}

// NewRouter deploys an aggregator at address
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
		return nil, fmt.Errorf("failed to deploy aggregator: %w", err)
	}
	return r, nil
}

// Address returns the aggregator address
func (r *Router) Address() common.Address {
	return r.address
}

// SetRate configures the rate of one underlying router for a direction
func (r *Router) SetRate(routerIndex uint8, tokenIn, tokenOut common.Address, rate dex.Rate) error {
	if err := rate.Validate(); err != nil {
		return err
	}
	r.rates[rateKey{routerIndex: routerIndex, tokenIn: tokenIn, tokenOut: tokenOut}] = rate
	return nil
}

// ExecuteMultiHopSwap pulls amountIn of tokens[0] from caller, runs every
// hop level and pays the final token to caller. The first level must
// allocate exactly amountIn; later levels split the previous level's
// output in proportion to their encoded amounts.
func (r *Router) ExecuteMultiHopSwap(caller common.Address, tokens []common.Address, amountIn, minAmountOut *big.Int, hops [][]routing.Hop) (*big.Int, error) {
	if len(tokens) < 2 || len(hops) == 0 {
		return nil, ErrEmptyPlan
	}
	if len(hops) != len(tokens)-1 {
		return nil, fmt.Errorf("%w: %d tokens, %d levels", ErrTokenMismatch, len(tokens), len(hops))
	}

	var amountOut *big.Int
	err := r.host.Call(func() error {
		first := routing.MultiRouterPayload{Hops: hops}.FirstLevelInput()
		if first.Cmp(amountIn) != 0 {
			return fmt.Errorf("%w: %s != %s", ErrAmountMismatch, first, amountIn)
		}

		levelIn := new(big.Int).Set(amountIn)
		for i, level := range hops {
			out, err := r.runLevel(tokens[i], tokens[i+1], levelIn, level)
			if err != nil {
				return fmt.Errorf("level %d: %w", i, err)
			}
			levelIn = out
		}

		if minAmountOut != nil && levelIn.Cmp(minAmountOut) < 0 {
			return fmt.Errorf("%w: %s < %s", dex.ErrTooLittleReceived, levelIn, minAmountOut)
		}
		if err := r.host.Token(tokens[0]).TransferFrom(r.address, caller, r.address, amountIn); err != nil {
			return fmt.Errorf("failed to pull input: %w", err)
		}
		if err := r.host.Token(tokens[len(tokens)-1]).Transfer(r.address, caller, levelIn); err != nil {
			return fmt.Errorf("failed to pay output: %w", err)
		}
		amountOut = levelIn
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Multi-hop swap executed",
		zap.Int("levels", len(hops)),
		zap.String("amountIn", amountIn.String()),
		zap.String("amountOut", amountOut.String()))
	return amountOut, nil
}

// runLevel splits levelIn across the allocations of one level
func (r *Router) runLevel(tokenIn, tokenOut common.Address, levelIn *big.Int, level []routing.Hop) (*big.Int, error) {
	if len(level) == 0 {
		return nil, ErrEmptyPlan
	}
	weights := new(big.Int)
	for _, hop := range level {
		if hop.TokenIn != tokenIn || hop.TokenOut != tokenOut {
			return nil, fmt.Errorf("%w: %s -> %s", ErrTokenMismatch, hop.TokenIn.Hex(), hop.TokenOut.Hex())
		}
		if hop.AmountIn != nil {
			weights.Add(weights, hop.AmountIn)
		}
	}

	total := new(big.Int)
	remaining := new(big.Int).Set(levelIn)
	for j, hop := range level {
		var share *big.Int
		switch {
		case j == len(level)-1:
			share = remaining
		case weights.Sign() == 0:
			share = new(big.Int)
		default:
			share = new(big.Int).Mul(levelIn, hop.AmountIn)
			share.Quo(share, weights)
		}
		remaining = new(big.Int).Sub(remaining, share)

		rate, ok := r.rates[rateKey{routerIndex: hop.RouterIndex, tokenIn: tokenIn, tokenOut: tokenOut}]
		if !ok {
			return nil, fmt.Errorf("%w: router %d %s -> %s", dex.ErrNoRate, hop.RouterIndex, tokenIn.Hex(), tokenOut.Hex())
		}
		total.Add(total, rate.Apply(share))
	}
	return total, nil
}
