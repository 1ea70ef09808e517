// Package simulator deploys a complete liquidation stack on an in-memory
// host from a config.ScenarioConfig and runs one liquidation against it.
package simulator

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/adapters"
	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/config"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/dex/liquidswap"
	"github.com/michaelpento.lv/flashliquidator/dex/uniswap"
	"github.com/michaelpento.lv/flashliquidator/flashloan"
	"github.com/michaelpento.lv/flashliquidator/flashloan/aave"
	"github.com/michaelpento.lv/flashliquidator/liquidator"
	"github.com/michaelpento.lv/flashliquidator/routing"
	"github.com/michaelpento.lv/flashliquidator/utils/bigmath"
	"github.com/michaelpento.lv/flashliquidator/utils/metrics"
)

// Simulated accounts and tokens
var (
	CollateralToken   = common.HexToAddress("0x00000000000000000000000000000000000c0111")
	DebtToken         = common.HexToAddress("0x00000000000000000000000000000000000deb70")
	Lender            = common.HexToAddress("0x000000000000000000000000000000000001e4de")
	Borrower          = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
	SwapRouter        = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	MultiHopRouter    = common.HexToAddress("0x744489Ee3d540777A66f2cf297479745e0852f7A")
	routerLiquidity   = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	lenderSupplyRatio = big.NewInt(10)
)

// reserve token addresses derived from the underlying
func aTokenOf(asset common.Address) common.Address {
	return common.BytesToAddress(append([]byte{0xa0}, asset.Bytes()[1:]...))
}

func variableDebtOf(asset common.Address) common.Address {
	return common.BytesToAddress(append([]byte{0xbd}, asset.Bytes()[1:]...))
}

// SimulationResult is the outcome of one simulated liquidation
type SimulationResult struct {
	Success  bool
	Error    error
	Kind     liquidator.Kind
	Result   *liquidator.Result
	Events   []*liquidator.LiquidationExecuted
	Digest   uint64
	Duration time.Duration
	Metrics  *metrics.Summary
}

// Deployment is the stack a scenario runs against
type Deployment struct {
	Host       *chain.Host
	Pool       *aave.Pool
	Router     *uniswap.Router
	Aggregator *liquidswap.Router
	Factory    *uniswap.Factory
	Liquidator *liquidator.Liquidator
	Registry   *prometheus.Registry
	Collateral common.Address
	Debt       common.Address
}

// Simulator builds deployments from configuration
type Simulator struct {
	cfg      *config.Config
	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewSimulator validates cfg. A nil registry gives every deployment a
// fresh one.
func NewSimulator(cfg *config.Config, registry *prometheus.Registry, logger *zap.Logger) (*Simulator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return &Simulator{cfg: cfg, registry: registry, logger: logger}, nil
}

func (s *Simulator) rate() dex.Rate {
	return dex.NewRate(s.cfg.Scenario.SwapRateNum, s.cfg.Scenario.SwapRateDen)
}

func (s *Simulator) swapFee() uint32 {
	if dex.ValidFeeTier(s.cfg.Scenario.PoolFee) {
		return s.cfg.Scenario.PoolFee
	}
	return dex.FeeMedium
}

// Deploy builds the lending pool, routers, adapters, optional flash pool
// and the liquidator, then opens the borrower's position and makes it
// liquidatable
func (s *Simulator) Deploy() (*Deployment, error) {
	sc := s.cfg.Scenario
	reg := s.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	lc, err := s.cfg.Liquidator.ToLiquidatorConfig()
	if err != nil {
		return nil, err
	}
	supply, err := config.ParseAmount(sc.CollateralSupply)
	if err != nil {
		return nil, fmt.Errorf("invalid collateral supply: %w", err)
	}
	borrow, err := config.ParseAmount(sc.Borrow)
	if err != nil {
		return nil, fmt.Errorf("invalid borrow: %w", err)
	}
	switch sc.Source {
	case config.SourceLendingPool:
		lc.Factory = common.Address{}
	case config.SourceDex:
		if lc.Factory == (common.Address{}) {
			lc.Factory = common.HexToAddress(config.DefaultFactory)
		}
	}
	if sc.NativeCollateral && lc.WrappedNative == (common.Address{}) {
		return nil, fmt.Errorf("native collateral needs a wrapped native address")
	}

	h := chain.NewHost()
	d := &Deployment{Host: h, Registry: reg, Collateral: CollateralToken, Debt: DebtToken}
	if sc.NativeCollateral {
		d.Collateral = lc.WrappedNative
	}

	poolOpts := []aave.Option{aave.WithPremium(sc.PremiumBps), aave.WithRegisterer(reg)}
	if sc.NativeCollateral {
		poolOpts = append(poolOpts, aave.WithNativePayout(lc.WrappedNative))
	}
	if d.Pool, err = aave.NewPool(h, lc.Pool, s.logger, poolOpts...); err != nil {
		return nil, err
	}
	for _, asset := range []common.Address{d.Collateral, d.Debt} {
		if err := d.Pool.AddReserve(flashloan.ReserveData{
			Asset:                asset,
			AToken:               aTokenOf(asset),
			VariableDebtToken:    variableDebtOf(asset),
			Decimals:             6,
			Price:                big.NewInt(1e8),
			LiquidationBonus:     sc.LiquidationBonusBps,
			LiquidationThreshold: 8000,
		}); err != nil {
			return nil, fmt.Errorf("failed to list reserve: %w", err)
		}
	}

	debt := h.Token(d.Debt)
	lent := new(big.Int).Mul(borrow, lenderSupplyRatio)
	if err := mintAndSupply(h, d.Pool, Lender, d.Debt, lent); err != nil {
		return nil, fmt.Errorf("failed to fund lending pool: %w", err)
	}

	if d.Router, err = uniswap.NewRouter(h, SwapRouter, s.logger); err != nil {
		return nil, err
	}
	if err := d.Router.SetRate(d.Collateral, d.Debt, s.swapFee(), s.rate()); err != nil {
		return nil, err
	}
	if d.Aggregator, err = liquidswap.NewRouter(h, MultiHopRouter, s.logger); err != nil {
		return nil, err
	}
	if err := d.Aggregator.SetRate(0, d.Collateral, d.Debt, s.rate()); err != nil {
		return nil, err
	}
	for _, r := range []common.Address{SwapRouter, MultiHopRouter} {
		if err := debt.Mint(r, routerLiquidity); err != nil {
			return nil, err
		}
	}

	for tag, addr := range lc.Adapters {
		if err := s.deployAdapter(h, tag, addr); err != nil {
			return nil, err
		}
	}

	if lc.Factory != (common.Address{}) {
		if d.Factory, err = uniswap.NewFactory(h, lc.Factory, s.logger); err != nil {
			return nil, err
		}
		flashPool, err := d.Factory.CreatePool(d.Collateral, d.Debt, sc.PoolFee)
		if err != nil {
			return nil, err
		}
		if err := debt.Mint(flashPool.Address(), routerLiquidity); err != nil {
			return nil, err
		}
	}

	namespace := s.cfg.Metrics.Namespace
	if namespace == "" {
		namespace = liquidator.DefaultMetricsNamespace
	}
	d.Liquidator, err = liquidator.New(h, lc, s.logger,
		liquidator.WithMetrics(metrics.NewLiquidationMetrics(namespace, reg)))
	if err != nil {
		return nil, err
	}

	if err := s.openPosition(d, supply, borrow); err != nil {
		return nil, fmt.Errorf("failed to open position: %w", err)
	}
	return d, nil
}

func (s *Simulator) deployAdapter(h *chain.Host, tag routing.Tag, addr common.Address) error {
	var err error
	switch tag {
	case routing.TagDirect:
		_, err = adapters.NewDirect(h, addr, s.logger)
	case routing.TagUniswapV3:
		_, err = adapters.NewUniswapV3(h, addr, SwapRouter, s.logger)
	case routing.TagMultiRouter:
		_, err = adapters.NewMultiRouter(h, addr, MultiHopRouter, s.logger)
	default:
		s.logger.Warn("No simulated adapter for tag", zap.Stringer("tag", tag), zap.String("address", addr.Hex()))
	}
	if err != nil {
		return fmt.Errorf("failed to deploy %s adapter: %w", tag, err)
	}
	return nil
}

func (s *Simulator) openPosition(d *Deployment, supply, borrow *big.Int) error {
	h := d.Host
	if s.cfg.Scenario.NativeCollateral {
		h.Fund(Borrower, supply)
		if err := h.WrappedNative(d.Collateral).Deposit(Borrower, supply); err != nil {
			return err
		}
		if err := h.Token(d.Collateral).Approve(Borrower, d.Pool.Address(), supply); err != nil {
			return err
		}
		if err := d.Pool.Supply(Borrower, d.Collateral, supply, Borrower); err != nil {
			return err
		}
	} else if err := mintAndSupply(h, d.Pool, Borrower, d.Collateral, supply); err != nil {
		return err
	}
	if err := d.Pool.Borrow(Borrower, d.Debt, borrow); err != nil {
		return err
	}
	return d.Pool.SetLiquidationThreshold(d.Collateral, s.cfg.Scenario.LiquidationThresholdBps)
}

func mintAndSupply(h *chain.Host, pool *aave.Pool, user, asset common.Address, amount *big.Int) error {
	token := h.Token(asset)
	if err := token.Mint(user, amount); err != nil {
		return err
	}
	if err := token.Approve(user, pool.Address(), amount); err != nil {
		return err
	}
	return pool.Supply(user, asset, amount, user)
}

// Request builds the liquidation order for the scenario
func (s *Simulator) Request(d *Deployment) (liquidator.Request, error) {
	sc := s.cfg.Scenario
	req := liquidator.Request{
		User:       Borrower,
		Collateral: d.Collateral,
		Debt:       d.Debt,
	}

	expected := new(big.Int)
	if sc.DebtToCover == "max" {
		req.DebtAmount = new(big.Int).Set(math.MaxBig256)
		reserve, err := d.Pool.ReserveData(d.Debt)
		if err != nil {
			return req, err
		}
		expected.Rsh(d.Host.Token(reserve.VariableDebtToken).BalanceOf(Borrower), 1)
	} else {
		amount, err := config.ParseAmount(sc.DebtToCover)
		if err != nil {
			return req, err
		}
		req.DebtAmount = amount
		expected.Set(amount)
	}
	minOut, err := config.ParseAmount(sc.MinAmountOut)
	if err != nil {
		return req, err
	}
	req.MinAmountOut = minOut

	tag, err := routing.ParseTag(sc.Adapter)
	if err != nil {
		return req, err
	}
	switch tag {
	case routing.TagUniswapV3:
		req.RoutingData, err = routing.UniswapV3SingleHop(s.swapFee())
	case routing.TagMultiRouter:
		// quoted from the expected seizure, the adapter reconciles the rest
		quote := bigmath.PercentMul(expected, sc.LiquidationBonusBps)
		req.RoutingData, err = routing.MultiRouter([]common.Address{d.Collateral, d.Debt}, [][]routing.Hop{{
			{TokenIn: d.Collateral, TokenOut: d.Debt, RouterIndex: 0, AmountIn: quote},
		}})
	case routing.TagDirect:
		req.RoutingData, err = routing.Direct()
	default:
		req.RoutingData, err = routing.Wrap(tag, nil)
	}
	return req, err
}

// Run deploys the scenario and executes the liquidation. A reverted
// liquidation is reported in the result, not as an error.
func (s *Simulator) Run() (*SimulationResult, error) {
	d, err := s.Deploy()
	if err != nil {
		return nil, fmt.Errorf("failed to deploy scenario: %w", err)
	}
	req, err := s.Request(d)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return s.Execute(d, req)
}

// Execute runs req as the liquidator's owner
func (s *Simulator) Execute(d *Deployment, req liquidator.Request) (*SimulationResult, error) {
	l := d.Liquidator
	start := time.Now()
	var (
		res *liquidator.Result
		err error
	)
	if l.FlashSource() == flashloan.SourceDexFlashSwap {
		res, err = l.LiquidateWithFee(l.Owner(), req, s.cfg.Scenario.PoolFee)
	} else {
		res, err = l.Liquidate(l.Owner(), req)
	}

	out := &SimulationResult{
		Success:  err == nil,
		Error:    err,
		Kind:     liquidator.KindOf(err),
		Result:   res,
		Events:   liquidator.FindLiquidations(d.Host.Logs(), l.Address()),
		Digest:   d.Host.Digest(),
		Duration: time.Since(start),
	}

	summary, gerr := metrics.Gather(d.Registry, s.cfg.Metrics.Namespace)
	if gerr != nil {
		return nil, gerr
	}
	out.Metrics = summary

	if err != nil {
		s.logger.Warn("Simulated liquidation reverted",
			zap.String("kind", out.Kind.String()),
			zap.Error(err))
	}
	return out, nil
}
