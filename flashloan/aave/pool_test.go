package aave

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/flashloan"
)

var (
	poolAddr   = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	collToken  = common.HexToAddress("0x00000000000000000000000000000000000c0111")
	debtToken  = common.HexToAddress("0x00000000000000000000000000000000000deb70")
	collAToken = common.HexToAddress("0x00000000000000000000000000000000a0c01110")
	debtAToken = common.HexToAddress("0x00000000000000000000000000000000a0deb700")
	debtVDebt  = common.HexToAddress("0x00000000000000000000000000000000bdeb7000")
	lender     = common.HexToAddress("0x000000000000000000000000000000000001e4de")
	borrower   = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
	liquidator = common.HexToAddress("0x000000000000000000000000000000000000110a")
	receiver   = common.HexToAddress("0x000000000000000000000000000000000000fe7c")
)

type fixture struct {
	host *chain.Host
	pool *Pool
	reg  *prometheus.Registry
}

func usd(dollars int64) *big.Int {
	return big.NewInt(dollars * 1e8)
}

// newFixture lists two 6-decimal reserves at $1 and opens an unhealthy
// position: 3_000_000 collateral against 2_200_000 debt at a 70% threshold
func newFixture(t *testing.T, opts ...Option) *fixture {
	h := chain.NewHost()
	reg := prometheus.NewRegistry()
	pool, err := NewPool(h, poolAddr, zaptest.NewLogger(t), append(opts, WithRegisterer(reg))...)
	require.NoError(t, err)

	require.NoError(t, pool.AddReserve(flashloan.ReserveData{
		Asset: collToken, AToken: collAToken, VariableDebtToken: common.HexToAddress("0xc0"),
		Decimals: 6, Price: usd(1), LiquidationBonus: 10500, LiquidationThreshold: 8000,
	}))
	require.NoError(t, pool.AddReserve(flashloan.ReserveData{
		Asset: debtToken, AToken: debtAToken, VariableDebtToken: debtVDebt,
		Decimals: 6, Price: usd(1), LiquidationBonus: 10500, LiquidationThreshold: 8000,
	}))

	require.NoError(t, h.Token(debtToken).Mint(lender, big.NewInt(100_000_000)))
	require.NoError(t, h.Token(debtToken).Approve(lender, poolAddr, big.NewInt(100_000_000)))
	require.NoError(t, pool.Supply(lender, debtToken, big.NewInt(100_000_000), lender))

	require.NoError(t, h.Token(collToken).Mint(borrower, big.NewInt(3_000_000)))
	require.NoError(t, h.Token(collToken).Approve(borrower, poolAddr, big.NewInt(3_000_000)))
	require.NoError(t, pool.Supply(borrower, collToken, big.NewInt(3_000_000), borrower))
	require.NoError(t, pool.Borrow(borrower, debtToken, big.NewInt(2_200_000)))
	require.NoError(t, pool.SetLiquidationThreshold(collToken, 7000))

	return &fixture{host: h, pool: pool, reg: reg}
}

func TestReserves(t *testing.T) {
	f := newFixture(t)

	data, err := f.pool.ReserveData(debtToken)
	require.NoError(t, err)
	assert.Equal(t, debtVDebt, data.VariableDebtToken)
	assert.Equal(t, uint8(6), data.Decimals)

	_, err = f.pool.ReserveData(common.HexToAddress("0xdead"))
	require.ErrorIs(t, err, flashloan.ErrReserveNotFound)

	err = f.pool.AddReserve(flashloan.ReserveData{Asset: debtToken, AToken: debtAToken, VariableDebtToken: debtVDebt, Price: usd(1), LiquidationBonus: 10500})
	require.Error(t, err)
	err = f.pool.AddReserve(flashloan.ReserveData{Asset: common.HexToAddress("0x1"), AToken: debtAToken, VariableDebtToken: debtVDebt, Price: usd(1), LiquidationBonus: 9000})
	require.Error(t, err)
}

func TestBorrowRequiresHealth(t *testing.T) {
	f := newFixture(t)
	before := f.host.Digest()

	err := f.pool.Borrow(borrower, debtToken, big.NewInt(1))
	require.ErrorIs(t, err, flashloan.ErrHealthFactor)
	assert.Equal(t, before, f.host.Digest())
}

func TestHealthFactor(t *testing.T) {
	f := newFixture(t)

	// 3_000_000 * 0.7 / 2_200_000
	hf := f.pool.HealthFactor(borrower)
	assert.Equal(t, "954545454545454545", hf.String())

	require.NoError(t, f.pool.SetLiquidationThreshold(collToken, 8000))
	assert.Equal(t, 1, f.pool.HealthFactor(borrower).Cmp(big.NewInt(1e18)))
	assert.Equal(t, 1, f.pool.HealthFactor(lender).Cmp(hf))
}

func TestLiquidationCall(t *testing.T) {
	fund := func(t *testing.T, f *fixture, amount int64) {
		require.NoError(t, f.host.Token(debtToken).Mint(liquidator, big.NewInt(amount)))
		require.NoError(t, f.host.Token(debtToken).Approve(liquidator, poolAddr, big.NewInt(amount)))
	}

	t.Run("bonus collateral", func(t *testing.T) {
		f := newFixture(t)
		fund(t, f, 1_000_000)

		require.NoError(t, f.pool.LiquidationCall(liquidator, collToken, debtToken, borrower, big.NewInt(1_000_000), false))
		assert.Equal(t, big.NewInt(1_050_000), f.host.Token(collToken).BalanceOf(liquidator))
		assert.Equal(t, big.NewInt(1_200_000), f.host.Token(debtVDebt).BalanceOf(borrower))
		assert.Equal(t, big.NewInt(1_950_000), f.host.Token(collAToken).BalanceOf(borrower))
		assert.Equal(t, float64(1), testutil.ToFloat64(f.pool.metrics.liquidations))

		logs := f.host.Logs()
		last := logs[len(logs)-1]
		assert.Equal(t, LiquidationCallTopic, last.Topics[0])
		assert.Equal(t, common.BytesToHash(borrower.Bytes()), last.Topics[3])
	})

	t.Run("close factor caps repayment", func(t *testing.T) {
		f := newFixture(t)
		fund(t, f, 2_000_000)

		require.NoError(t, f.pool.LiquidationCall(liquidator, collToken, debtToken, borrower, big.NewInt(2_000_000), false))
		assert.Equal(t, big.NewInt(900_000), f.host.Token(debtToken).BalanceOf(liquidator))
		assert.Equal(t, big.NewInt(1_155_000), f.host.Token(collToken).BalanceOf(liquidator))
	})

	t.Run("collateral capped at balance", func(t *testing.T) {
		f := newFixture(t)
		fund(t, f, 1_100_000)
		require.NoError(t, f.pool.SetPrice(collToken, big.NewInt(5e7)))

		// 1_100_000 debt buys 2_310_000 collateral at $0.50, capped at the 1_000_000 left
		require.NoError(t, f.host.Token(collAToken).Transfer(borrower, lender, big.NewInt(2_000_000)))
		require.NoError(t, f.pool.LiquidationCall(liquidator, collToken, debtToken, borrower, big.NewInt(1_100_000), false))
		assert.Equal(t, big.NewInt(1_000_000), f.host.Token(collToken).BalanceOf(liquidator))
		assert.Equal(t, "0", f.host.Token(collAToken).BalanceOf(borrower).String())
		// 1_000_000 * 0.5 / 1.05
		assert.Equal(t, big.NewInt(1_100_000-476_190), f.host.Token(debtToken).BalanceOf(liquidator))
	})

	t.Run("receive aToken", func(t *testing.T) {
		f := newFixture(t)
		fund(t, f, 1_000_000)

		require.NoError(t, f.pool.LiquidationCall(liquidator, collToken, debtToken, borrower, big.NewInt(1_000_000), true))
		assert.Equal(t, big.NewInt(1_050_000), f.host.Token(collAToken).BalanceOf(liquidator))
		assert.Equal(t, "0", f.host.Token(collToken).BalanceOf(liquidator).String())
	})

	t.Run("healthy position", func(t *testing.T) {
		f := newFixture(t)
		fund(t, f, 1_000_000)
		require.NoError(t, f.pool.SetLiquidationThreshold(collToken, 8000))
		before := f.host.Digest()

		err := f.pool.LiquidationCall(liquidator, collToken, debtToken, borrower, big.NewInt(1_000_000), false)
		require.ErrorIs(t, err, flashloan.ErrHealthyPosition)
		assert.Equal(t, before, f.host.Digest())
	})

	t.Run("missing allowance", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.host.Token(debtToken).Mint(liquidator, big.NewInt(1_000_000)))

		err := f.pool.LiquidationCall(liquidator, collToken, debtToken, borrower, big.NewInt(1_000_000), false)
		require.ErrorIs(t, err, chain.ErrInsufficientAllowance)
	})
}

func TestNativePayout(t *testing.T) {
	h := chain.NewHost()
	pool, err := NewPool(h, poolAddr, zaptest.NewLogger(t), WithNativePayout(collToken))
	require.NoError(t, err)
	require.NoError(t, pool.AddReserve(flashloan.ReserveData{
		Asset: collToken, AToken: collAToken, VariableDebtToken: common.HexToAddress("0xc0"),
		Decimals: 6, Price: usd(1), LiquidationBonus: 10500, LiquidationThreshold: 8000,
	}))
	require.NoError(t, pool.AddReserve(flashloan.ReserveData{
		Asset: debtToken, AToken: debtAToken, VariableDebtToken: debtVDebt,
		Decimals: 6, Price: usd(1), LiquidationBonus: 10500, LiquidationThreshold: 8000,
	}))
	require.NoError(t, h.Token(debtToken).Mint(debtAToken, big.NewInt(10_000_000)))

	wrapped := h.WrappedNative(collToken)
	h.Fund(borrower, big.NewInt(3_000_000))
	require.NoError(t, wrapped.Deposit(borrower, big.NewInt(3_000_000)))
	require.NoError(t, wrapped.Approve(borrower, poolAddr, big.NewInt(3_000_000)))
	require.NoError(t, pool.Supply(borrower, collToken, big.NewInt(3_000_000), borrower))
	require.NoError(t, pool.Borrow(borrower, debtToken, big.NewInt(2_200_000)))
	require.NoError(t, pool.SetLiquidationThreshold(collToken, 7000))

	require.NoError(t, h.Token(debtToken).Mint(liquidator, big.NewInt(1_000_000)))
	require.NoError(t, h.Token(debtToken).Approve(liquidator, poolAddr, big.NewInt(1_000_000)))
	require.NoError(t, pool.LiquidationCall(liquidator, collToken, debtToken, borrower, big.NewInt(1_000_000), false))

	assert.Equal(t, big.NewInt(1_050_000), h.NativeBalance(liquidator))
	assert.Equal(t, "0", wrapped.BalanceOf(liquidator).String())
}

type stubReceiver struct {
	host    *chain.Host
	self    common.Address
	approve bool
	result  bool
	err     error
	seen    struct {
		caller, initiator common.Address
		premium           *big.Int
	}
}

func (r *stubReceiver) ExecuteOperation(caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error) {
	r.seen.caller = caller
	r.seen.initiator = initiator
	r.seen.premium = premium
	if r.err != nil {
		return false, r.err
	}
	if r.approve {
		if err := r.host.Token(asset).Approve(r.self, caller, new(big.Int).Add(amount, premium)); err != nil {
			return false, err
		}
	}
	return r.result, nil
}

func TestFlashLoanSimple(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *stubReceiver) {
		f := newFixture(t)
		r := &stubReceiver{host: f.host, self: receiver, approve: true, result: true}
		require.NoError(t, f.host.Deploy(receiver, r))
		require.NoError(t, f.host.Token(debtToken).Mint(receiver, big.NewInt(900)))
		return f, r
	}

	t.Run("premium pulled back", func(t *testing.T) {
		f, r := setup(t)
		liquidity := f.host.Token(debtToken).BalanceOf(debtAToken)

		require.NoError(t, f.pool.FlashLoanSimple(liquidator, receiver, debtToken, big.NewInt(1_000_000), nil, 0))
		assert.Equal(t, big.NewInt(900), r.seen.premium)
		assert.Equal(t, poolAddr, r.seen.caller)
		assert.Equal(t, liquidator, r.seen.initiator)
		assert.Equal(t, "0", f.host.Token(debtToken).BalanceOf(receiver).String())
		assert.Equal(t, new(big.Int).Add(liquidity, big.NewInt(900)), f.host.Token(debtToken).BalanceOf(debtAToken))
		assert.Equal(t, float64(1), testutil.ToFloat64(f.pool.metrics.loanCount))
		assert.Equal(t, float64(900), testutil.ToFloat64(f.pool.metrics.fees.WithLabelValues(debtToken.Hex())))
	})

	t.Run("receiver returns false", func(t *testing.T) {
		f, r := setup(t)
		r.result = false
		before := f.host.Digest()

		err := f.pool.FlashLoanSimple(liquidator, receiver, debtToken, big.NewInt(1_000_000), nil, 0)
		require.ErrorIs(t, err, flashloan.ErrReceiverRejected)
		assert.Equal(t, before, f.host.Digest())
	})

	t.Run("receiver error", func(t *testing.T) {
		f, r := setup(t)
		r.err = errors.New("boom")
		before := f.host.Digest()

		err := f.pool.FlashLoanSimple(liquidator, receiver, debtToken, big.NewInt(1_000_000), nil, 0)
		require.EqualError(t, err, "boom")
		assert.Equal(t, before, f.host.Digest())
	})

	t.Run("no allowance", func(t *testing.T) {
		f, r := setup(t)
		r.approve = false

		err := f.pool.FlashLoanSimple(liquidator, receiver, debtToken, big.NewInt(1_000_000), nil, 0)
		require.ErrorIs(t, err, chain.ErrInsufficientAllowance)
	})

	t.Run("not a receiver", func(t *testing.T) {
		f, _ := setup(t)
		err := f.pool.FlashLoanSimple(liquidator, lender, debtToken, big.NewInt(1), nil, 0)
		require.ErrorIs(t, err, flashloan.ErrNotReceiver)
	})

	t.Run("custom premium", func(t *testing.T) {
		f := newFixture(t, WithPremium(5))
		assert.Equal(t, uint64(5), f.pool.PremiumBps())
	})
}
