package routing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Hop is one allocation of a multi-router swap plan
type Hop struct {
	TokenIn     common.Address
	TokenOut    common.Address
	RouterIndex uint8
	Fee         uint32
	AmountIn    *big.Int
	Stable      bool
}

// MultiRouterPayload is abi.encode(address[] tokens, SwapAlloc[][] hops).
// Hops[i] is the i-th hop level; allocations within a level run in
// parallel across routers.
type MultiRouterPayload struct {
	Tokens []common.Address
	Hops   [][]Hop
}

// Clone deep-copies the payload, amounts included
func (p MultiRouterPayload) Clone() MultiRouterPayload {
	out := MultiRouterPayload{
		Tokens: append([]common.Address(nil), p.Tokens...),
		Hops:   make([][]Hop, len(p.Hops)),
	}
	for i, level := range p.Hops {
		out.Hops[i] = make([]Hop, len(level))
		for j, hop := range level {
			hop.AmountIn = cloneAmount(hop.AmountIn)
			out.Hops[i][j] = hop
		}
	}
	return out
}

// FirstLevelInput sums the encoded input of the first hop level
func (p MultiRouterPayload) FirstLevelInput() *big.Int {
	sum := new(big.Int)
	if len(p.Hops) == 0 {
		return sum
	}
	for _, hop := range p.Hops[0] {
		if hop.AmountIn != nil {
			sum.Add(sum, hop.AmountIn)
		}
	}
	return sum
}

// abiHop mirrors the SwapAlloc tuple; field order and types follow the
// ABI components
type abiHop struct {
	TokenIn     common.Address
	TokenOut    common.Address
	RouterIndex uint8
	Fee         *big.Int
	AmountIn    *big.Int
	Stable      bool
}

var multiRouterArgs = abi.Arguments{
	{Name: "tokens", Type: abiAddrs},
	{Name: "hops", Type: abiHopGrid},
}

// EncodeMultiRouter packs the payload (without envelope)
func EncodeMultiRouter(p MultiRouterPayload) ([]byte, error) {
	tokens := p.Tokens
	if tokens == nil {
		tokens = []common.Address{}
	}
	grid := make([][]abiHop, len(p.Hops))
	for i, level := range p.Hops {
		grid[i] = make([]abiHop, len(level))
		for j, hop := range level {
			if hop.Fee > maxUint24 {
				return nil, fmt.Errorf("%w: hop %d/%d fee %d", ErrFeeOutOfRange, i, j, hop.Fee)
			}
			if hop.AmountIn != nil && hop.AmountIn.Sign() < 0 {
				return nil, fmt.Errorf("%w: hop %d/%d negative amount", ErrMalformedPayload, i, j)
			}
			grid[i][j] = abiHop{
				TokenIn:     hop.TokenIn,
				TokenOut:    hop.TokenOut,
				RouterIndex: hop.RouterIndex,
				Fee:         new(big.Int).SetUint64(uint64(hop.Fee)),
				AmountIn:    cloneAmount(hop.AmountIn),
				Stable:      hop.Stable,
			}
		}
	}
	data, err := multiRouterArgs.Pack(tokens, grid)
	if err != nil {
		return nil, fmt.Errorf("failed to pack multi-router payload: %w", err)
	}
	return data, nil
}

// DecodeMultiRouter unpacks a payload produced by EncodeMultiRouter
func DecodeMultiRouter(data []byte) (MultiRouterPayload, error) {
	out, err := multiRouterArgs.Unpack(data)
	if err != nil {
		return MultiRouterPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	tokens, ok := out[0].([]common.Address)
	if !ok {
		return MultiRouterPayload{}, fmt.Errorf("%w: tokens", ErrMalformedPayload)
	}
	grid := *abi.ConvertType(out[1], new([][]abiHop)).(*[][]abiHop)

	p := MultiRouterPayload{
		Tokens: tokens,
		Hops:   make([][]Hop, len(grid)),
	}
	for i, level := range grid {
		p.Hops[i] = make([]Hop, len(level))
		for j, hop := range level {
			if hop.Fee == nil || !hop.Fee.IsUint64() || hop.Fee.Uint64() > maxUint24 {
				return MultiRouterPayload{}, fmt.Errorf("%w: hop %d/%d fee", ErrMalformedPayload, i, j)
			}
			p.Hops[i][j] = Hop{
				TokenIn:     hop.TokenIn,
				TokenOut:    hop.TokenOut,
				RouterIndex: hop.RouterIndex,
				Fee:         uint32(hop.Fee.Uint64()),
				AmountIn:    cloneAmount(hop.AmountIn),
				Stable:      hop.Stable,
			}
		}
	}
	return p, nil
}

// MultiRouter builds a full envelope for the multi-router adapter
func MultiRouter(tokens []common.Address, hops [][]Hop) ([]byte, error) {
	payload, err := EncodeMultiRouter(MultiRouterPayload{Tokens: tokens, Hops: hops})
	if err != nil {
		return nil, err
	}
	return Wrap(TagMultiRouter, payload)
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
