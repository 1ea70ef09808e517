package liquidswap

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

var (
	aggregator = common.HexToAddress("0x744489Ee3d540777A66f2cf297479745e0852f7A")
	whype      = common.HexToAddress("0x5555555555555555555555555555555555555555")
	usdt       = common.HexToAddress("0xB8CE59FC3717ada4C02eaDF9682A9e934F625ebb")
	ueth       = common.HexToAddress("0xBe6727B535545C67d5cAa73dEa54865B92CF7907")
	trader     = common.HexToAddress("0x0000000000000000000000000000000000007a7a")
)

func setup(t *testing.T) (*chain.Host, *Router) {
	h := chain.NewHost()
	r, err := NewRouter(h, aggregator, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, r.SetRate(0, whype, usdt, dex.NewRate(40, 1)))
	require.NoError(t, r.SetRate(1, whype, usdt, dex.NewRate(41, 1)))
	require.NoError(t, r.SetRate(0, whype, ueth, dex.NewRate(1, 100)))
	require.NoError(t, r.SetRate(2, ueth, usdt, dex.NewRate(4000, 1)))

	require.NoError(t, h.Token(usdt).Mint(aggregator, big.NewInt(1_000_000_000)))
	require.NoError(t, h.Token(whype).Mint(trader, big.NewInt(10_000)))
	require.NoError(t, h.Token(whype).Approve(trader, aggregator, big.NewInt(10_000)))
	return h, r
}

func TestExecuteMultiHopSwap(t *testing.T) {
	t.Run("split single level", func(t *testing.T) {
		h, r := setup(t)
		hops := [][]routing.Hop{{
			{TokenIn: whype, TokenOut: usdt, RouterIndex: 0, AmountIn: big.NewInt(600)},
			{TokenIn: whype, TokenOut: usdt, RouterIndex: 1, AmountIn: big.NewInt(400)},
		}}

		out, err := r.ExecuteMultiHopSwap(trader, []common.Address{whype, usdt}, big.NewInt(1000), big.NewInt(40_000), hops)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(600*40+400*41), out)
		assert.Equal(t, out, h.Token(usdt).BalanceOf(trader))
		assert.Equal(t, big.NewInt(9_000), h.Token(whype).BalanceOf(trader))
	})

	t.Run("two levels scale proportionally", func(t *testing.T) {
		_, r := setup(t)
		hops := [][]routing.Hop{
			{{TokenIn: whype, TokenOut: ueth, RouterIndex: 0, AmountIn: big.NewInt(1000)}},
			{{TokenIn: ueth, TokenOut: usdt, RouterIndex: 2, AmountIn: big.NewInt(1)}},
		}

		out, err := r.ExecuteMultiHopSwap(trader, []common.Address{whype, ueth, usdt}, big.NewInt(1000), nil, hops)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(10*4000), out)
	})

	t.Run("first level must match input", func(t *testing.T) {
		h, r := setup(t)
		before := h.Digest()
		hops := [][]routing.Hop{{{TokenIn: whype, TokenOut: usdt, AmountIn: big.NewInt(999)}}}

		_, err := r.ExecuteMultiHopSwap(trader, []common.Address{whype, usdt}, big.NewInt(1000), nil, hops)
		require.ErrorIs(t, err, ErrAmountMismatch)
		assert.Equal(t, before, h.Digest())
	})

	t.Run("minimum enforced", func(t *testing.T) {
		h, r := setup(t)
		before := h.Digest()
		hops := [][]routing.Hop{{{TokenIn: whype, TokenOut: usdt, AmountIn: big.NewInt(1000)}}}

		_, err := r.ExecuteMultiHopSwap(trader, []common.Address{whype, usdt}, big.NewInt(1000), big.NewInt(40_001), hops)
		require.ErrorIs(t, err, dex.ErrTooLittleReceived)
		assert.Equal(t, before, h.Digest())
	})

	t.Run("hop tokens must follow the list", func(t *testing.T) {
		_, r := setup(t)
		hops := [][]routing.Hop{{{TokenIn: ueth, TokenOut: usdt, AmountIn: big.NewInt(1000)}}}

		_, err := r.ExecuteMultiHopSwap(trader, []common.Address{whype, usdt}, big.NewInt(1000), nil, hops)
		require.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("unknown router", func(t *testing.T) {
		_, r := setup(t)
		hops := [][]routing.Hop{{{TokenIn: whype, TokenOut: usdt, RouterIndex: 9, AmountIn: big.NewInt(1000)}}}

		_, err := r.ExecuteMultiHopSwap(trader, []common.Address{whype, usdt}, big.NewInt(1000), nil, hops)
		require.ErrorIs(t, err, dex.ErrNoRate)
	})

	t.Run("empty plan", func(t *testing.T) {
		_, r := setup(t)
		_, err := r.ExecuteMultiHopSwap(trader, []common.Address{whype}, big.NewInt(1000), nil, nil)
		require.ErrorIs(t, err, ErrEmptyPlan)
	})
}
