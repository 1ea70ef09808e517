package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/flashliquidator/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitDefaults bool

var configInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write the effective configuration to file, YAML or JSON by extension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cfg
		if configInitDefaults {
			out = config.DefaultConfig()
		}
		if err := config.SaveConfig(out, args[0]); err != nil {
			return err
		}
		log.Info("Configuration written", zap.String("file", args[0]))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitDefaults, "defaults", false, "write defaults instead of the loaded config")
	configCmd.AddCommand(configShowCmd, configInitCmd)
}
