// Package aave is an in-memory Aave V3 style lending pool. Underlying
// liquidity of a reserve sits at its aToken address; supplied collateral
// is tracked as aToken balances and borrows as variable-debt-token
// balances, all on the host ledger.
package aave

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/flashloan"
	"github.com/michaelpento.lv/flashliquidator/utils/bigmath"
)

var (
	// LiquidationCallTopic is keccak256("LiquidationCall(address,address,address,uint256,uint256,address,bool)")
	LiquidationCallTopic = crypto.Keccak256Hash([]byte("LiquidationCall(address,address,address,uint256,uint256,address,bool)"))
	// FlashLoanTopic is keccak256("FlashLoan(address,address,address,uint256,uint8,uint256,uint16)")
	FlashLoanTopic = crypto.Keccak256Hash([]byte("FlashLoan(address,address,address,uint256,uint8,uint256,uint16)"))

	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiAddress, _ = abi.NewType("address", "", nil)
	abiBool, _    = abi.NewType("bool", "", nil)
	abiUint8, _   = abi.NewType("uint8", "", nil)
	abiUint16, _  = abi.NewType("uint16", "", nil)

	liquidationCallData = abi.Arguments{
		{Name: "debtToCover", Type: abiUint256},
		{Name: "liquidatedCollateralAmount", Type: abiUint256},
		{Name: "liquidator", Type: abiAddress},
		{Name: "receiveAToken", Type: abiBool},
	}
	flashLoanData = abi.Arguments{
		{Name: "initiator", Type: abiAddress},
		{Name: "amount", Type: abiUint256},
		{Name: "interestRateMode", Type: abiUint8},
		{Name: "premium", Type: abiUint256},
		{Name: "referralCode", Type: abiUint16},
	}
)

// healthFactorOne is a health factor of 1.0 (18 decimals)
var healthFactorOne = big.NewInt(1e18)

// Option configures a Pool
type Option func(*Pool)

// WithPremium sets the flash loan premium in basis points
func WithPremium(bps uint64) Option {
	return func(p *Pool) { p.premiumBps = bps }
}

// WithNativePayout pays liquidated wrapped-native collateral out as native
// currency
func WithNativePayout(wrappedNative common.Address) Option {
	return func(p *Pool) { p.nativePayout = wrappedNative }
}

// WithRegisterer registers the pool's metrics
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pool) { p.registerer = reg }
}

// Pool implements flashloan.LendingPool
type Pool struct {
	host         *chain.Host
	address      common.Address
	reserves     map[common.Address]*flashloan.ReserveData
	assets       []common.Address
	premiumBps   uint64
	nativePayout common.Address
	registerer   prometheus.Registerer
	logger       *zap.Logger
	metrics      struct {
		loanCount    prometheus.Counter
		fees         *prometheus.CounterVec
		liquidations prometheus.Counter
		latency      prometheus.Histogram
	}
}

// NewPool deploys a lending pool at address
func NewPool(host *chain.Host, address common.Address, logger *zap.Logger, opts ...Option) (*Pool, error) {
	if host == nil {
		return nil, fmt.Errorf("host cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	p := &Pool{
		host:       host,
		address:    address,
		reserves:   make(map[common.Address]*flashloan.ReserveData),
		premiumBps: flashloan.DefaultPremiumBps,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	factory := promauto.With(p.registerer)
	p.metrics.loanCount = factory.NewCounter(prometheus.CounterOpts{
		Name: "lending_pool_flash_loans_total",
		Help: "Total number of simple flash loans served",
	})
	p.metrics.fees = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "lending_pool_flash_premiums_total",
		Help: "Flash loan premiums collected, in asset units",
	}, []string{"asset"})
	p.metrics.liquidations = factory.NewCounter(prometheus.CounterOpts{
		Name: "lending_pool_liquidations_total",
		Help: "Total number of liquidation calls settled",
	})
	p.metrics.latency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "lending_pool_call_latency_seconds",
		Help:    "Latency of flash loan and liquidation calls",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	if err := host.Deploy(address, p); err != nil {
		return nil, fmt.Errorf("failed to deploy pool: %w", err)
	}
	return p, nil
}

// Address returns the pool address
func (p *Pool) Address() common.Address {
	return p.address
}

// PremiumBps returns the flash loan premium
func (p *Pool) PremiumBps() uint64 {
	return p.premiumBps
}

// AddReserve lists an asset
func (p *Pool) AddReserve(r flashloan.ReserveData) error {
	if r.Asset == (common.Address{}) || r.AToken == (common.Address{}) || r.VariableDebtToken == (common.Address{}) {
		return fmt.Errorf("reserve addresses cannot be zero")
	}
	if r.Price == nil || r.Price.Sign() <= 0 {
		return fmt.Errorf("reserve price must be positive")
	}
	if r.LiquidationBonus < bigmath.BasisPoints {
		return fmt.Errorf("liquidation bonus %d below %d", r.LiquidationBonus, bigmath.BasisPoints)
	}
	if _, ok := p.reserves[r.Asset]; ok {
		return fmt.Errorf("reserve %s already listed", r.Asset.Hex())
	}
	r.Price = new(big.Int).Set(r.Price)
	p.reserves[r.Asset] = &r
	p.assets = append(p.assets, r.Asset)
	return nil
}

// SetPrice updates the oracle price of a reserve
func (p *Pool) SetPrice(asset common.Address, price *big.Int) error {
	r, ok := p.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, asset.Hex())
	}
	r.Price = new(big.Int).Set(price)
	return nil
}

// SetLiquidationThreshold updates the liquidation threshold of a reserve
func (p *Pool) SetLiquidationThreshold(asset common.Address, bps uint64) error {
	r, ok := p.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, asset.Hex())
	}
	r.LiquidationThreshold = bps
	return nil
}

// ReserveData returns the reserve configuration of asset
func (p *Pool) ReserveData(asset common.Address) (flashloan.ReserveData, error) {
	r, ok := p.reserves[asset]
	if !ok {
		return flashloan.ReserveData{}, fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, asset.Hex())
	}
	out := *r
	out.Price = new(big.Int).Set(r.Price)
	return out, nil
}

// Supply moves amount of asset from caller into the reserve and credits
// aTokens to onBehalfOf
func (p *Pool) Supply(caller, asset common.Address, amount *big.Int, onBehalfOf common.Address) error {
	r, ok := p.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, asset.Hex())
	}
	return p.host.Call(func() error {
		if err := p.host.Token(asset).TransferFrom(p.address, caller, r.AToken, amount); err != nil {
			return fmt.Errorf("failed to pull supply: %w", err)
		}
		return p.host.Token(r.AToken).Mint(onBehalfOf, amount)
	})
}

// Borrow lends amount of asset to caller against its collateral
func (p *Pool) Borrow(caller, asset common.Address, amount *big.Int) error {
	r, ok := p.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, asset.Hex())
	}
	return p.host.Call(func() error {
		if err := p.host.Token(r.VariableDebtToken).Mint(caller, amount); err != nil {
			return err
		}
		if err := p.host.Token(asset).Transfer(r.AToken, caller, amount); err != nil {
			return fmt.Errorf("failed to lend: %w", err)
		}
		if p.HealthFactor(caller).Cmp(healthFactorOne) < 0 {
			return flashloan.ErrHealthFactor
		}
		return nil
	})
}

// HealthFactor returns the user's health factor with 18 decimals, or max
// uint256 when the user has no debt
func (p *Pool) HealthFactor(user common.Address) *big.Int {
	collateral := new(big.Int)
	debt := new(big.Int)
	for _, asset := range p.assets {
		r := p.reserves[asset]
		if bal := p.host.Token(r.AToken).BalanceOf(user); bal.Sign() > 0 {
			collateral.Add(collateral, bigmath.PercentMul(baseValue(bal, r), r.LiquidationThreshold))
		}
		if bal := p.host.Token(r.VariableDebtToken).BalanceOf(user); bal.Sign() > 0 {
			debt.Add(debt, baseValue(bal, r))
		}
	}
	if debt.Sign() == 0 {
		return new(big.Int).Set(math.MaxBig256)
	}
	return bigmath.MulDiv(collateral, healthFactorOne, debt)
}

// LiquidationCall repays part of an unhealthy position. At most half the
// user's debt is covered; when the discounted collateral exceeds the
// user's balance the whole balance is seized and the repaid debt is
// recomputed from it.
func (p *Pool) LiquidationCall(caller, collateral, debt, user common.Address, debtToCover *big.Int, receiveAToken bool) error {
	start := time.Now()
	defer func() { p.metrics.latency.Observe(time.Since(start).Seconds()) }()

	collReserve, ok := p.reserves[collateral]
	if !ok {
		return fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, collateral.Hex())
	}
	debtReserve, ok := p.reserves[debt]
	if !ok {
		return fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, debt.Hex())
	}

	var actualDebt, seized *big.Int
	err := p.host.Call(func() error {
		if hf := p.HealthFactor(user); hf.Cmp(healthFactorOne) >= 0 {
			return fmt.Errorf("%w: %s", flashloan.ErrHealthyPosition, hf)
		}
		userDebt := p.host.Token(debtReserve.VariableDebtToken).BalanceOf(user)
		if userDebt.Sign() == 0 {
			return flashloan.ErrNoDebt
		}
		userCollateral := p.host.Token(collReserve.AToken).BalanceOf(user)
		if userCollateral.Sign() == 0 {
			return flashloan.ErrNoCollateral
		}

		actualDebt = bigmath.Min(debtToCover, bigmath.PercentMul(userDebt, flashloan.CloseFactorBps))
		seized = bigmath.PercentMul(convert(actualDebt, debtReserve, collReserve), collReserve.LiquidationBonus)
		if seized.Cmp(userCollateral) > 0 {
			seized = userCollateral
			actualDebt = bigmath.MulDiv(convert(seized, collReserve, debtReserve), big.NewInt(bigmath.BasisPoints), new(big.Int).SetUint64(collReserve.LiquidationBonus))
		}

		if err := p.host.Token(debt).TransferFrom(p.address, caller, debtReserve.AToken, actualDebt); err != nil {
			return fmt.Errorf("failed to pull repayment: %w", err)
		}
		if err := p.host.Token(debtReserve.VariableDebtToken).Burn(user, actualDebt); err != nil {
			return err
		}
		if err := p.payCollateral(caller, user, collReserve, seized, receiveAToken); err != nil {
			return err
		}

		data, err := liquidationCallData.Pack(actualDebt, seized, caller, receiveAToken)
		if err != nil {
			return fmt.Errorf("failed to pack event: %w", err)
		}
		p.host.EmitLog(p.address, []common.Hash{
			LiquidationCallTopic,
			common.BytesToHash(collateral.Bytes()),
			common.BytesToHash(debt.Bytes()),
			common.BytesToHash(user.Bytes()),
		}, data)
		return nil
	})
	if err != nil {
		return err
	}

	p.metrics.liquidations.Inc()
	p.logger.Debug("Liquidation settled",
		zap.String("user", user.Hex()),
		zap.String("debtCovered", actualDebt.String()),
		zap.String("collateralSeized", seized.String()))
	return nil
}

func (p *Pool) payCollateral(caller, user common.Address, r *flashloan.ReserveData, amount *big.Int, receiveAToken bool) error {
	aToken := p.host.Token(r.AToken)
	if receiveAToken {
		return aToken.Transfer(user, caller, amount)
	}
	if err := aToken.Burn(user, amount); err != nil {
		return err
	}
	if r.Asset != p.nativePayout {
		return p.host.Token(r.Asset).Transfer(r.AToken, caller, amount)
	}

	wrapped := p.host.WrappedNative(r.Asset)
	if err := wrapped.Transfer(r.AToken, p.address, amount); err != nil {
		return err
	}
	if err := wrapped.Withdraw(p.address, amount); err != nil {
		return err
	}
	return p.host.TransferNative(p.address, caller, amount)
}

// FlashLoanSimple lends amount of asset to receiver for one callback
func (p *Pool) FlashLoanSimple(caller, receiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error {
	start := time.Now()
	defer func() { p.metrics.latency.Observe(time.Since(start).Seconds()) }()

	r, ok := p.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", flashloan.ErrReserveNotFound, asset.Hex())
	}
	premium := bigmath.PercentMul(amount, p.premiumBps)

	err := p.host.Call(func() error {
		c, ok := p.host.Contract(receiver)
		if !ok {
			return fmt.Errorf("%w: %s", flashloan.ErrNotReceiver, receiver.Hex())
		}
		recv, ok := c.(flashloan.Receiver)
		if !ok {
			return fmt.Errorf("%w: %s", flashloan.ErrNotReceiver, receiver.Hex())
		}

		if err := p.host.Token(asset).Transfer(r.AToken, receiver, amount); err != nil {
			return fmt.Errorf("failed to lend: %w", err)
		}
		done, err := recv.ExecuteOperation(p.address, asset, new(big.Int).Set(amount), new(big.Int).Set(premium), caller, params)
		if err != nil {
			return err
		}
		if !done {
			return flashloan.ErrReceiverRejected
		}
		owed := new(big.Int).Add(amount, premium)
		if err := p.host.Token(asset).TransferFrom(p.address, receiver, r.AToken, owed); err != nil {
			return fmt.Errorf("failed to pull repayment: %w", err)
		}

		data, err := flashLoanData.Pack(caller, amount, uint8(0), premium, referralCode)
		if err != nil {
			return fmt.Errorf("failed to pack event: %w", err)
		}
		p.host.EmitLog(p.address, []common.Hash{
			FlashLoanTopic,
			common.BytesToHash(receiver.Bytes()),
			common.BytesToHash(caller.Bytes()),
			common.BytesToHash(asset.Bytes()),
		}, data)
		return nil
	})
	if err != nil {
		return err
	}

	p.metrics.loanCount.Inc()
	premiumF, _ := new(big.Float).SetInt(premium).Float64()
	p.metrics.fees.WithLabelValues(asset.Hex()).Add(premiumF)
	return nil
}

// baseValue prices amount of a reserve in the base currency
func baseValue(amount *big.Int, r *flashloan.ReserveData) *big.Int {
	return bigmath.MulDiv(amount, r.Price, bigmath.Pow10(r.Decimals))
}

// convert expresses amount of reserve from in units of reserve to
func convert(amount *big.Int, from, to *flashloan.ReserveData) *big.Int {
	num := new(big.Int).Mul(amount, from.Price)
	num.Mul(num, bigmath.Pow10(to.Decimals))
	den := new(big.Int).Mul(to.Price, bigmath.Pow10(from.Decimals))
	return num.Quo(num, den)
}
