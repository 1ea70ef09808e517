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

// MultiRouter routes through a multi-router aggregator
type MultiRouter struct {
	host    *chain.Host
	address common.Address
	router  dex.MultiHopRouter
	logger  *zap.Logger
}

// NewMultiRouter deploys an adapter at address bound to the aggregator
// deployed at routerAddr
func NewMultiRouter(host *chain.Host, address, routerAddr common.Address, logger *zap.Logger) (*MultiRouter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	router, err := resolve[dex.MultiHopRouter](host, routerAddr, "multi-hop router")
	if err != nil {
		return nil, err
	}
	a := &MultiRouter{host: host, address: address, router: router, logger: logger}
	if err := host.Deploy(address, a); err != nil {
		return nil, fmt.Errorf("failed to deploy multi-router adapter: %w", err)
	}
	return a, nil
}

func (a *MultiRouter) Address() common.Address {
	return a.address
}

// Swap decodes (tokens, hops), reconciles the plan with the amount
// actually received and executes it
func (a *MultiRouter) Swap(caller, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int, data []byte) (*big.Int, error) {
	payload, err := routing.DecodeMultiRouter(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}
	if len(payload.Tokens) < 2 || payload.Tokens[0] != tokenIn || payload.Tokens[len(payload.Tokens)-1] != tokenOut {
		return nil, fmt.Errorf("%w: token list does not run %s..%s", ErrInvalidPath, tokenIn.Hex(), tokenOut.Hex())
	}

	plan, err := ReconcileFirstHop(payload, amountIn)
	if err != nil {
		return nil, err
	}

	var amountOut *big.Int
	err = a.host.Call(func() error {
		if err := a.host.Token(tokenIn).Approve(a.address, a.router.Address(), amountIn); err != nil {
			return err
		}
		out, err := a.router.ExecuteMultiHopSwap(a.address, plan.Tokens, amountIn, minAmountOut, plan.Hops)
		if err != nil {
			return routerError(err)
		}
		if err := checkOutput(out, minAmountOut); err != nil {
			return err
		}
		if err := a.host.Token(tokenOut).Transfer(a.address, caller, out); err != nil {
			return err
		}
		amountOut = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Multi-router swap",
		zap.Int("levels", len(plan.Hops)),
		zap.String("amountIn", amountIn.String()),
		zap.String("amountOut", amountOut.String()))
	return amountOut, nil
}

// ReconcileFirstHop returns a copy of the plan whose first allocation is
// shifted by amountIn minus the first level's encoded total, so the first
// level allocates exactly amountIn. The input payload is not modified.
func ReconcileFirstHop(payload routing.MultiRouterPayload, amountIn *big.Int) (routing.MultiRouterPayload, error) {
	if len(payload.Hops) == 0 || len(payload.Hops[0]) == 0 {
		return routing.MultiRouterPayload{}, fmt.Errorf("%w: empty hop list", ErrInvalidRoute)
	}
	plan := payload.Clone()
	diff := new(big.Int).Sub(amountIn, payload.FirstLevelInput())
	first := &plan.Hops[0][0]
	first.AmountIn = new(big.Int).Add(first.AmountIn, diff)
	if first.AmountIn.Sign() < 0 {
		return routing.MultiRouterPayload{}, fmt.Errorf("%w: first hop amount would be %s", ErrInvalidRoute, first.AmountIn)
	}
	return plan, nil
}
