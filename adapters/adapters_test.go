package adapters

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/dex/liquidswap"
	"github.com/michaelpento.lv/flashliquidator/dex/uniswap"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

var (
	caller      = common.HexToAddress("0x000000000000000000000000000000000000ca11")
	directAddr  = common.HexToAddress("0x000000000000000000000000000000000000d1ec")
	univ3Addr   = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	multiAddr   = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	routerAddr  = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	aggregator  = common.HexToAddress("0x744489Ee3d540777A66f2cf297479745e0852f7A")
	weth        = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc        = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wbtc        = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	routerFunds = big.NewInt(1_000_000_000_000)
)

// swapFrom moves amountIn to the adapter and swaps inside one frame, the
// way the liquidator does
func swapFrom(h *chain.Host, a Adapter, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int, data []byte) (*big.Int, error) {
	var out *big.Int
	err := h.Call(func() error {
		if err := h.Token(tokenIn).Transfer(caller, a.Address(), amountIn); err != nil {
			return err
		}
		var err error
		out, err = a.Swap(caller, tokenIn, tokenOut, amountIn, minOut, data)
		return err
	})
	return out, err
}

func TestDirect(t *testing.T) {
	h := chain.NewHost()
	a, err := NewDirect(h, directAddr, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, h.Token(usdc).Mint(caller, big.NewInt(1_000)))

	tests := []struct {
		name     string
		tokenOut common.Address
		amount   int64
		min      int64
		wantErr  error
	}{
		{"same token", usdc, 500, 500, nil},
		{"min below amount", usdc, 500, 1, nil},
		{"min above amount", usdc, 500, 501, ErrInsufficientOutput},
		{"different token", weth, 500, 0, ErrTokenMismatch},
		{"different token zero min", weth, 0, 0, ErrTokenMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.Digest()
			out, err := swapFrom(h, a, usdc, tt.tokenOut, big.NewInt(tt.amount), big.NewInt(tt.min), nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, h.Digest())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, big.NewInt(tt.amount), out)
			assert.Equal(t, big.NewInt(1_000), h.Token(usdc).BalanceOf(caller))
		})
	}
}

func newUniswapV3(t *testing.T) (*chain.Host, *UniswapV3) {
	h := chain.NewHost()
	router, err := uniswap.NewRouter(h, routerAddr, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, router.SetRate(weth, usdc, dex.FeeLow, dex.NewRate(2000, 1)))
	require.NoError(t, router.SetRate(wbtc, weth, dex.FeeMedium, dex.NewRate(15, 1)))
	require.NoError(t, h.Token(usdc).Mint(routerAddr, routerFunds))

	a, err := NewUniswapV3(h, univ3Addr, routerAddr, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, h.Token(weth).Mint(caller, big.NewInt(100)))
	require.NoError(t, h.Token(wbtc).Mint(caller, big.NewInt(100)))
	return h, a
}

func TestUniswapV3(t *testing.T) {
	single := func(t *testing.T, fee uint32) []byte {
		p, err := routing.EncodeUniswapV3(routing.UniswapV3Payload{Fee: fee})
		require.NoError(t, err)
		return p
	}
	multi := func(t *testing.T, tokens ...common.Address) []byte {
		path, err := routing.EncodePath(tokens, []uint32{dex.FeeMedium, dex.FeeLow}[:len(tokens)-1])
		require.NoError(t, err)
		p, err := routing.EncodeUniswapV3(routing.UniswapV3Payload{MultiHop: true, Path: path})
		require.NoError(t, err)
		return p
	}

	t.Run("single hop", func(t *testing.T) {
		h, a := newUniswapV3(t)
		out, err := swapFrom(h, a, weth, usdc, big.NewInt(10), big.NewInt(20_000), single(t, dex.FeeLow))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(20_000), out)
		assert.Equal(t, big.NewInt(20_000), h.Token(usdc).BalanceOf(caller))
		assert.Equal(t, "0", h.Token(weth).BalanceOf(univ3Addr).String())
	})

	t.Run("multi hop", func(t *testing.T) {
		h, a := newUniswapV3(t)
		out, err := swapFrom(h, a, wbtc, usdc, big.NewInt(2), big.NewInt(0), multi(t, wbtc, weth, usdc))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(60_000), out)
		assert.Equal(t, big.NewInt(60_000), h.Token(usdc).BalanceOf(caller))
	})

	t.Run("path must match tokens", func(t *testing.T) {
		h, a := newUniswapV3(t)
		_, err := swapFrom(h, a, weth, usdc, big.NewInt(2), big.NewInt(0), multi(t, wbtc, weth, usdc))
		require.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("slippage rolls back", func(t *testing.T) {
		h, a := newUniswapV3(t)
		before := h.Digest()
		wethBefore := h.Token(weth).BalanceOf(caller)

		_, err := swapFrom(h, a, weth, usdc, big.NewInt(10), big.NewInt(20_001), single(t, dex.FeeLow))
		require.ErrorIs(t, err, ErrInsufficientOutput)
		assert.Equal(t, before, h.Digest())
		assert.Equal(t, wethBefore, h.Token(weth).BalanceOf(caller))
		assert.Equal(t, "0", h.Token(usdc).BalanceOf(caller).String())
	})

	t.Run("garbage payload", func(t *testing.T) {
		h, a := newUniswapV3(t)
		_, err := swapFrom(h, a, weth, usdc, big.NewInt(1), big.NewInt(0), []byte{0x01, 0x02})
		require.ErrorIs(t, err, ErrInvalidRoute)
	})

	t.Run("router must exist", func(t *testing.T) {
		h := chain.NewHost()
		_, err := NewUniswapV3(h, univ3Addr, routerAddr, zaptest.NewLogger(t))
		require.Error(t, err)
	})
}

func newMultiRouter(t *testing.T) (*chain.Host, *MultiRouter) {
	h := chain.NewHost()
	router, err := liquidswap.NewRouter(h, aggregator, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, router.SetRate(0, weth, usdc, dex.NewRate(2000, 1)))
	require.NoError(t, router.SetRate(1, weth, usdc, dex.NewRate(1990, 1)))
	require.NoError(t, h.Token(usdc).Mint(aggregator, routerFunds))

	a, err := NewMultiRouter(h, multiAddr, aggregator, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, h.Token(weth).Mint(caller, big.NewInt(10_000)))
	return h, a
}

func splitPayload(first, second int64) routing.MultiRouterPayload {
	return routing.MultiRouterPayload{
		Tokens: []common.Address{weth, usdc},
		Hops: [][]routing.Hop{{
			{TokenIn: weth, TokenOut: usdc, RouterIndex: 0, AmountIn: big.NewInt(first)},
			{TokenIn: weth, TokenOut: usdc, RouterIndex: 1, AmountIn: big.NewInt(second)},
		}},
	}
}

func TestReconcileFirstHop(t *testing.T) {
	tests := []struct {
		name      string
		amountIn  int64
		wantFirst int64
		wantErr   error
	}{
		{"exact", 1_000, 600, nil},
		{"more received", 1_003, 603, nil},
		{"less received", 995, 595, nil},
		{"first hop absorbs everything", 400, 0, nil},
		{"shortfall beyond first hop", 399, 0, ErrInvalidRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := splitPayload(600, 400)
			plan, err := ReconcileFirstHop(payload, big.NewInt(tt.amountIn))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, big.NewInt(tt.wantFirst).String(), plan.Hops[0][0].AmountIn.String())
			assert.Equal(t, big.NewInt(400), plan.Hops[0][1].AmountIn)
			assert.Equal(t, big.NewInt(tt.amountIn), plan.FirstLevelInput())
			assert.Equal(t, big.NewInt(600), payload.Hops[0][0].AmountIn)
		})
	}

	_, err := ReconcileFirstHop(routing.MultiRouterPayload{}, big.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidRoute)
}

func TestMultiRouter(t *testing.T) {
	encode := func(t *testing.T, p routing.MultiRouterPayload) []byte {
		data, err := routing.EncodeMultiRouter(p)
		require.NoError(t, err)
		return data
	}

	t.Run("reconciled swap", func(t *testing.T) {
		h, a := newMultiRouter(t)
		out, err := swapFrom(h, a, weth, usdc, big.NewInt(1_010), big.NewInt(0), encode(t, splitPayload(600, 400)))
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(610*2000+400*1990), out)
		assert.Equal(t, out, h.Token(usdc).BalanceOf(caller))
		assert.Equal(t, "0", h.Token(usdc).BalanceOf(multiAddr).String())
	})

	t.Run("slippage rolls back", func(t *testing.T) {
		h, a := newMultiRouter(t)
		before := h.Digest()

		_, err := swapFrom(h, a, weth, usdc, big.NewInt(1_000), big.NewInt(1_996_001), encode(t, splitPayload(600, 400)))
		require.ErrorIs(t, err, ErrInsufficientOutput)
		assert.Equal(t, before, h.Digest())
		assert.Equal(t, big.NewInt(10_000), h.Token(weth).BalanceOf(caller))
	})

	t.Run("token list must match", func(t *testing.T) {
		h, a := newMultiRouter(t)
		p := splitPayload(600, 400)
		p.Tokens = []common.Address{wbtc, usdc}
		_, err := swapFrom(h, a, weth, usdc, big.NewInt(1_000), big.NewInt(0), encode(t, p))
		require.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("negative adjustment rejected", func(t *testing.T) {
		h, a := newMultiRouter(t)
		_, err := swapFrom(h, a, weth, usdc, big.NewInt(100), big.NewInt(0), encode(t, splitPayload(600, 400)))
		require.ErrorIs(t, err, ErrInvalidRoute)
	})
}
