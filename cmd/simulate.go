package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/simulator"
	"github.com/michaelpento.lv/flashliquidator/utils"
	"github.com/michaelpento.lv/flashliquidator/utils/metrics"
)

var simulateOpts struct {
	source   string
	adapter  string
	debt     string
	minOut   string
	poolFee  uint32
	native   bool
	rateNum  int64
	rateDen  int64
	premium  uint64
	noMetric bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one liquidation on an in-memory deployment",
	Long: `simulate deploys the lending pool, swap routers, adapters, optional flash
pool and the liquidator on an in-memory chain, opens an undercollateralised
position and liquidates it with the configured flash source and adapter.
Flags override the scenario section of the config.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.source, "source", "", "flash source: dex or lending_pool")
	f.StringVar(&simulateOpts.adapter, "adapter", "", "swap adapter name or tag")
	f.StringVar(&simulateOpts.debt, "debt", "", `debt to cover in token units, or "max"`)
	f.StringVar(&simulateOpts.minOut, "min-out", "", "minimum swap output")
	f.Uint32Var(&simulateOpts.poolFee, "pool-fee", 0, "flash pool and swap fee tier")
	f.BoolVar(&simulateOpts.native, "native", false, "use wrapped native collateral")
	f.Int64Var(&simulateOpts.rateNum, "rate-num", 0, "swap rate numerator")
	f.Int64Var(&simulateOpts.rateDen, "rate-den", 0, "swap rate denominator")
	f.Uint64Var(&simulateOpts.premium, "premium", 0, "flash loan premium in basis points")
	f.BoolVar(&simulateOpts.noMetric, "no-metrics", false, "skip the metrics summary")
}

func applySimulateFlags(cmd *cobra.Command) error {
	sc := &cfg.Scenario
	flags := cmd.Flags()
	if flags.Changed("source") {
		sc.Source = simulateOpts.source
	}
	if flags.Changed("adapter") {
		sc.Adapter = simulateOpts.adapter
	}
	if flags.Changed("debt") {
		sc.DebtToCover = simulateOpts.debt
	}
	if flags.Changed("min-out") {
		sc.MinAmountOut = simulateOpts.minOut
	}
	if flags.Changed("pool-fee") {
		sc.PoolFee = simulateOpts.poolFee
	}
	if flags.Changed("native") {
		sc.NativeCollateral = simulateOpts.native
	}
	if flags.Changed("rate-num") {
		sc.SwapRateNum = simulateOpts.rateNum
	}
	if flags.Changed("rate-den") {
		sc.SwapRateDen = simulateOpts.rateDen
	}
	if flags.Changed("premium") {
		sc.PremiumBps = simulateOpts.premium
	}
	return cfg.ValidateConfig()
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := applySimulateFlags(cmd); err != nil {
		return err
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.Registry()
	}
	sim, err := simulator.NewSimulator(cfg, reg, utils.ComponentLogger("simulator"))
	if err != nil {
		return err
	}
	res, err := sim.Run()
	if err != nil {
		return err
	}

	printSimulation(cmd.OutOrStdout(), res, !simulateOpts.noMetric)
	if !res.Success {
		log.Error("Liquidation failed", zap.String("kind", res.Kind.String()), zap.Error(res.Error))
		return fmt.Errorf("liquidation reverted: %w", res.Error)
	}
	return nil
}

func printSimulation(w io.Writer, res *simulator.SimulationResult, withMetrics bool) {
	fmt.Fprintf(w, "success:    %t\n", res.Success)
	if res.Success {
		r := res.Result
		fmt.Fprintf(w, "source:     %s\n", r.Source)
		if r.FlashPool != (common.Address{}) {
			fmt.Fprintf(w, "flash pool: %s\n", r.FlashPool.Hex())
		}
		fmt.Fprintf(w, "covered:    %s\n", r.DebtCovered)
		fmt.Fprintf(w, "collateral: %s\n", r.CollateralReceived)
		fmt.Fprintf(w, "flash fee:  %s\n", r.FlashFee)
		if r.Swapped {
			fmt.Fprintf(w, "adapter:    %s\n", r.AdapterTag)
		}
		fmt.Fprintf(w, "profit:     %s\n", r.Profit)
	} else {
		fmt.Fprintf(w, "kind:       %s\n", res.Kind)
		fmt.Fprintf(w, "error:      %v\n", res.Error)
	}
	fmt.Fprintf(w, "events:     %d\n", len(res.Events))
	fmt.Fprintf(w, "digest:     %016x\n", res.Digest)
	fmt.Fprintf(w, "duration:   %s\n", res.Duration)

	if withMetrics && res.Metrics != nil {
		fmt.Fprintln(w, "metrics:")
		for _, line := range res.Metrics.Lines() {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
