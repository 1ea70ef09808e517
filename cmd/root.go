package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/config"
	"github.com/michaelpento.lv/flashliquidator/utils"
	"github.com/michaelpento.lv/flashliquidator/utils/metrics"
)

var (
	cfgFile  string
	envFiles []string
	debug    bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "flashliquidator",
	Short: "Flash-funded liquidations against an Aave-style lending pool",
	Long: `flashliquidator borrows the debt asset through a DEX flash swap or a
lending-pool flash loan, liquidates an undercollateralised position, swaps
the seized collateral back through a pluggable adapter and repays the flash
source in one atomic call.

The simulate command runs a full liquidation on an in-memory chain; encode
and decode build and inspect routing data and executor calldata.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "dotenv files to load before the config (default .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(simulateCmd, encodeCmd, decodeCmd, configCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}

	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		loaded.Logging.Debug = true
	}
	cfg = loaded

	log = utils.InitLogger(cfg.Logging.Debug, cfg.Logging.File)
	if cfg.Metrics.Enabled {
		metrics.Initialize(&metrics.MetricsConfig{
			Namespace:  cfg.Metrics.Namespace,
			LogMetrics: cfg.Logging.Debug,
		}, log)
	}
	log.Debug("Configuration loaded",
		zap.String("file", cfgFile),
		zap.Uint64("chain_id", cfg.Chain.ChainID),
		zap.String("source", cfg.Scenario.Source))
	return nil
}
