// Package liquidator is the flash-liquidation orchestrator. One attempt
// flash-borrows the debt asset, repays the position through the lending
// pool's liquidation call, swaps the seized collateral back through a
// registered adapter, repays the flash source and keeps the remainder.
package liquidator

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/flashloan"
	"github.com/michaelpento.lv/flashliquidator/routing"
	"github.com/michaelpento.lv/flashliquidator/utils/bigmath"
	"github.com/michaelpento.lv/flashliquidator/utils/metrics"
)

// DefaultMetricsNamespace prefixes the liquidator's collectors
const DefaultMetricsNamespace = "flashliquidator"

// Config describes one liquidator deployment
type Config struct {
	Address common.Address
	Owner   common.Address
	Pool    common.Address
	// Factory selects the DEX flash swap source when set
	Factory       common.Address
	WrappedNative common.Address
	// DefaultFlashFeeTier falls back to dex.FeeMedium when zero
	DefaultFlashFeeTier uint32
	Adapters            map[routing.Tag]common.Address
}

// Request is one liquidation order. A DebtAmount of math.MaxBig256 covers
// half of the user's variable debt.
type Request struct {
	User         common.Address
	Collateral   common.Address
	Debt         common.Address
	DebtAmount   *big.Int
	MinAmountOut *big.Int
	RoutingData  []byte
}

// Result describes a committed liquidation
type Result struct {
	Source             flashloan.Source
	FlashPool          common.Address
	DebtCovered        *big.Int
	CollateralReceived *big.Int
	FlashFee           *big.Int
	Profit             *big.Int
	Swapped            bool
	AdapterTag         routing.Tag
}

// flashParams is the context of the attempt in flight. It is set right
// before the flash request and read by exactly one callback.
type flashParams struct {
	user         common.Address
	collateral   common.Address
	debt         common.Address
	debtToCover  *big.Int
	minAmountOut *big.Int
	routingData  []byte

	// DEX path
	flashPool    common.Address
	debtIsToken0 bool
	// lending pool path
	premium *big.Int

	// filled in by the callback
	consumed           bool
	fee                *big.Int
	collateralReceived *big.Int
	swapped            bool
	adapterTag         routing.Tag
}

// Option configures a Liquidator
type Option func(*Liquidator)

// WithMetrics sets the collectors the liquidator reports to
func WithMetrics(m *metrics.LiquidationMetrics) Option {
	return func(l *Liquidator) { l.metrics = m }
}

// WithDecoder sets the routing decoder
func WithDecoder(d *routing.Decoder) Option {
	return func(l *Liquidator) { l.decoder = d }
}

// WithRegistry injects a prepared registry instead of building one from
// Config
func WithRegistry(r *Registry) Option {
	return func(l *Liquidator) { l.registry = r }
}

// Liquidator is deployed on the host and implements both
// dex.FlashCallback and flashloan.Receiver
type Liquidator struct {
	host          *chain.Host
	address       common.Address
	owner         common.Address
	pool          flashloan.LendingPool
	factory       dex.Factory
	wrappedNative common.Address
	source        flashloan.Source

	registry *Registry
	decoder  *routing.Decoder
	metrics  *metrics.LiquidationMetrics
	logger   *zap.Logger

	busy   atomic.Bool
	params *flashParams
}

var (
	_ dex.FlashCallback  = (*Liquidator)(nil)
	_ flashloan.Receiver = (*Liquidator)(nil)
)

// New resolves the collaborators named in cfg and deploys the liquidator
// at cfg.Address
func New(host *chain.Host, cfg Config, logger *zap.Logger, opts ...Option) (*Liquidator, error) {
	if host == nil {
		return nil, fmt.Errorf("host cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) || cfg.Pool == (common.Address{}) {
		return nil, fmt.Errorf("%w: address, owner and pool are required", ErrZeroAddress)
	}

	c, ok := host.Contract(cfg.Pool)
	if !ok {
		return nil, fmt.Errorf("no lending pool deployed at %s", cfg.Pool.Hex())
	}
	pool, ok := c.(flashloan.LendingPool)
	if !ok {
		return nil, fmt.Errorf("contract at %s is not a lending pool", cfg.Pool.Hex())
	}

	l := &Liquidator{
		host:          host,
		address:       cfg.Address,
		owner:         cfg.Owner,
		pool:          pool,
		wrappedNative: cfg.WrappedNative,
		source:        flashloan.SourceFor(cfg.Factory),
		logger:        logger,
	}

	if l.source == flashloan.SourceDexFlashSwap {
		c, ok := host.Contract(cfg.Factory)
		if !ok {
			return nil, fmt.Errorf("no factory deployed at %s", cfg.Factory.Hex())
		}
		if l.factory, ok = c.(dex.Factory); !ok {
			return nil, fmt.Errorf("contract at %s is not a factory", cfg.Factory.Hex())
		}
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.registry == nil {
		registry, err := NewRegistry(cfg.DefaultFlashFeeTier, cfg.Adapters)
		if err != nil {
			return nil, err
		}
		l.registry = registry
	}
	if l.decoder == nil {
		decoder, err := routing.NewDecoder(routing.DefaultDecoderCacheSize, logger)
		if err != nil {
			return nil, err
		}
		l.decoder = decoder
	}
	if l.metrics == nil {
		l.metrics = metrics.NewLiquidationMetrics(DefaultMetricsNamespace, nil)
	}

	if err := host.Deploy(cfg.Address, l); err != nil {
		return nil, fmt.Errorf("failed to deploy liquidator: %w", err)
	}

	logger.Info("Liquidator deployed",
		zap.String("address", cfg.Address.Hex()),
		zap.String("owner", cfg.Owner.Hex()),
		zap.String("source", l.source.String()),
		zap.Uint32("defaultFeeTier", l.registry.DefaultFlashFeeTier()))
	return l, nil
}

// Address returns the liquidator's address
func (l *Liquidator) Address() common.Address { return l.address }

// Owner returns the privileged caller
func (l *Liquidator) Owner() common.Address { return l.owner }

// Pool returns the lending pool address
func (l *Liquidator) Pool() common.Address { return l.pool.Address() }

// Factory returns the DEX factory address, zero on the lending pool source
func (l *Liquidator) Factory() common.Address {
	if l.factory == nil {
		return common.Address{}
	}
	return l.factory.Address()
}

// WrappedNative returns the wrapped native asset address
func (l *Liquidator) WrappedNative() common.Address { return l.wrappedNative }

// FlashSource returns the flash mechanism fixed at deployment
func (l *Liquidator) FlashSource() flashloan.Source { return l.source }

// DefaultFlashFeeTier returns the fee tier Liquidate selects pools with
func (l *Liquidator) DefaultFlashFeeTier() uint32 { return l.registry.DefaultFlashFeeTier() }

// Adapter returns the adapter registered for tag, or the zero address
func (l *Liquidator) Adapter(tag routing.Tag) common.Address { return l.registry.Adapter(tag) }

// Registry returns the liquidator's configuration object
func (l *Liquidator) Registry() *Registry { return l.registry }

// Liquidate runs one attempt at the default flash fee tier
func (l *Liquidator) Liquidate(caller common.Address, req Request) (*Result, error) {
	return l.liquidate(caller, req, l.registry.DefaultFlashFeeTier())
}

// LiquidateWithFee runs one attempt selecting the flash pool at feeTier.
// The tier is ignored on the lending pool source.
func (l *Liquidator) LiquidateWithFee(caller common.Address, req Request, feeTier uint32) (*Result, error) {
	return l.liquidate(caller, req, feeTier)
}

func (l *Liquidator) liquidate(caller common.Address, req Request, feeTier uint32) (*Result, error) {
	release, err := l.enter(caller)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	l.metrics.Attempts.WithLabelValues(l.source.String()).Inc()
	l.logger.Debug("Starting liquidation",
		zap.String("user", req.User.Hex()),
		zap.String("collateral", req.Collateral.Hex()),
		zap.String("debt", req.Debt.Hex()),
		zap.Stringer("debtAmount", req.DebtAmount),
		zap.Uint32("feeTier", feeTier))

	res, err := l.execute(req, feeTier)
	l.metrics.ExecutionTime.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := KindOf(err)
		l.metrics.Failures.WithLabelValues(kind.String()).Inc()
		l.logger.Warn("Liquidation failed",
			zap.String("user", req.User.Hex()),
			zap.String("kind", kind.String()),
			zap.Error(err))
		return nil, err
	}

	l.metrics.Successes.WithLabelValues(l.source.String()).Inc()
	l.metrics.ProfitTotal.Add(toFloat(res.Profit))
	l.metrics.CollateralReceived.Add(toFloat(res.CollateralReceived))
	if res.Swapped {
		l.metrics.AdapterSwaps.WithLabelValues(res.AdapterTag.String()).Inc()
	}
	l.logger.Info("Liquidation executed",
		zap.String("user", req.User.Hex()),
		zap.String("source", res.Source.String()),
		zap.Stringer("debtCovered", res.DebtCovered),
		zap.Stringer("collateralReceived", res.CollateralReceived),
		zap.Stringer("flashFee", res.FlashFee),
		zap.Stringer("profit", res.Profit),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (l *Liquidator) validate(req Request, feeTier uint32) error {
	if req.User == (common.Address{}) || req.Collateral == (common.Address{}) || req.Debt == (common.Address{}) {
		return fmt.Errorf("%w: user, collateral and debt are required", ErrZeroAddress)
	}
	if req.DebtAmount == nil || req.DebtAmount.Sign() <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, req.DebtAmount)
	}
	if req.MinAmountOut != nil && req.MinAmountOut.Sign() < 0 {
		return fmt.Errorf("%w: negative minAmountOut", ErrInvalidAmount)
	}
	if l.source == flashloan.SourceDexFlashSwap && !dex.ValidFeeTier(feeTier) {
		return fmt.Errorf("%w: %d", ErrInvalidFeeTier, feeTier)
	}
	return nil
}

// execute runs the attempt as one host call frame, so any failure unwinds
// every ledger effect
func (l *Liquidator) execute(req Request, feeTier uint32) (*Result, error) {
	if err := l.validate(req, feeTier); err != nil {
		return nil, err
	}

	var res *Result
	err := l.host.Call(func() error {
		defer func() { l.params = nil }()

		amount, err := l.debtToCover(req)
		if err != nil {
			return err
		}
		fp := &flashParams{
			user:         req.User,
			collateral:   req.Collateral,
			debt:         req.Debt,
			debtToCover:  amount,
			minAmountOut: new(big.Int),
			routingData:  append([]byte(nil), req.RoutingData...),
		}
		if req.MinAmountOut != nil {
			fp.minAmountOut.Set(req.MinAmountOut)
		}

		debtToken := l.host.Token(req.Debt)
		before := debtToken.BalanceOf(l.address)

		switch l.source {
		case flashloan.SourceDexFlashSwap:
			err = l.flashSwap(fp, feeTier)
		default:
			err = l.flashLoan(fp)
		}
		if err != nil {
			return err
		}
		if fp.fee == nil || fp.collateralReceived == nil {
			return fmt.Errorf("%w: flash source returned without calling back", ErrInvalidCallback)
		}

		profit := bigmath.SubFloor(debtToken.BalanceOf(l.address), before)
		if err := l.emitLiquidationExecuted(fp.user, fp.collateral, fp.debt, fp.debtToCover, fp.collateralReceived, profit); err != nil {
			return err
		}

		res = &Result{
			Source:             l.source,
			FlashPool:          fp.flashPool,
			DebtCovered:        fp.debtToCover,
			CollateralReceived: fp.collateralReceived,
			FlashFee:           fp.fee,
			Profit:             profit,
			Swapped:            fp.swapped,
			AdapterTag:         fp.adapterTag,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// debtToCover resolves the max sentinel to half of the user's variable debt
func (l *Liquidator) debtToCover(req Request) (*big.Int, error) {
	if req.DebtAmount.Cmp(math.MaxBig256) != 0 {
		return new(big.Int).Set(req.DebtAmount), nil
	}

	reserve, err := l.pool.ReserveData(req.Debt)
	if err != nil {
		return nil, fmt.Errorf("failed to read debt reserve: %w", err)
	}
	owed := l.host.Token(reserve.VariableDebtToken).BalanceOf(req.User)
	amount := owed.Rsh(owed, 1)
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: no variable debt to cover", ErrInvalidAmount)
	}
	l.logger.Debug("Resolved max debt sentinel",
		zap.String("user", req.User.Hex()),
		zap.Stringer("debtToCover", amount))
	return amount, nil
}

// flashSwap borrows from the (collateral, debt) pool at feeTier, falling
// back to the (wrappedNative, debt) pool. Only that one fallback is tried.
func (l *Liquidator) flashSwap(fp *flashParams, feeTier uint32) error {
	poolAddr := l.factory.GetPool(fp.collateral, fp.debt, feeTier)
	if poolAddr == (common.Address{}) && l.wrappedNative != (common.Address{}) {
		poolAddr = l.factory.GetPool(l.wrappedNative, fp.debt, feeTier)
	}
	if poolAddr == (common.Address{}) {
		return fmt.Errorf("%w: %s/%s at fee %d", ErrNoPoolFound, fp.collateral.Hex(), fp.debt.Hex(), feeTier)
	}

	c, ok := l.host.Contract(poolAddr)
	if !ok {
		return fmt.Errorf("%w: nothing deployed at %s", ErrNoPoolFound, poolAddr.Hex())
	}
	pool, ok := c.(dex.FlashPool)
	if !ok {
		return fmt.Errorf("%w: %s is not a flash pool", ErrNoPoolFound, poolAddr.Hex())
	}

	amount0, amount1 := new(big.Int), new(big.Int)
	switch fp.debt {
	case pool.Token0():
		fp.debtIsToken0 = true
		amount0.Set(fp.debtToCover)
	case pool.Token1():
		amount1.Set(fp.debtToCover)
	default:
		return fmt.Errorf("%w: pool %s does not hold %s", ErrNoPoolFound, poolAddr.Hex(), fp.debt.Hex())
	}
	fp.flashPool = poolAddr

	l.params = fp
	l.logger.Debug("Requesting flash swap",
		zap.String("pool", poolAddr.Hex()),
		zap.Uint32("fee", pool.Fee()),
		zap.Bool("debtIsToken0", fp.debtIsToken0),
		zap.Stringer("amount", fp.debtToCover))
	if err := pool.Flash(l.address, l.address, amount0, amount1, nil); err != nil {
		return fmt.Errorf("flash swap failed: %w", err)
	}
	return nil
}

func (l *Liquidator) flashLoan(fp *flashParams) error {
	fp.premium = new(big.Int)

	l.params = fp
	l.logger.Debug("Requesting flash loan",
		zap.String("pool", l.pool.Address().Hex()),
		zap.Stringer("amount", fp.debtToCover))
	if err := l.pool.FlashLoanSimple(l.address, l.address, fp.debt, fp.debtToCover, nil, 0); err != nil {
		return fmt.Errorf("flash loan failed: %w", err)
	}
	return nil
}

func toFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
