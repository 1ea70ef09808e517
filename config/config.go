package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/liquidator"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

// DefaultConfigFile is looked up in the user's home directory when no
// path is given
const DefaultConfigFile = ".flashliquidator.yaml"

// Addresses of the default in-memory deployment
const (
	DefaultLiquidatorAddress = "0x000000000000000000000000000000000000f1a5"
	DefaultOwner             = "0x00000000000000000000000000000000000000a1"
	DefaultPool              = "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
	DefaultFactory           = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	DefaultWrappedNative     = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	DefaultMultiRouter       = "0x0000000000000000000000000000000000000a00"
	DefaultUniswapV3         = "0x0000000000000000000000000000000000000a03"
	DefaultDirect            = "0x000000000000000000000000000000000000d1ec"
)

type Config struct {
	Chain      ChainConfig      `json:"chain" yaml:"chain"`
	Liquidator LiquidatorConfig `json:"liquidator" yaml:"liquidator"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Scenario   ScenarioConfig   `json:"scenario" yaml:"scenario"`
}

type ChainConfig struct {
	ChainID uint64 `json:"chain_id" yaml:"chain_id"`
	Name    string `json:"name" yaml:"name"`
}

// LiquidatorConfig holds one deployment. Addresses are hex strings; an
// empty factory selects the lending pool flash loan.
type LiquidatorConfig struct {
	Address             string            `json:"address" yaml:"address"`
	Owner               string            `json:"owner" yaml:"owner"`
	Pool                string            `json:"pool" yaml:"pool"`
	Factory             string            `json:"factory" yaml:"factory"`
	WrappedNative       string            `json:"wrapped_native" yaml:"wrapped_native"`
	DefaultFlashFeeTier uint32            `json:"default_flash_fee_tier" yaml:"default_flash_fee_tier"`
	Adapters            map[string]string `json:"adapters" yaml:"adapters"` // adapter name or tag -> address
}

type LoggingConfig struct {
	Debug bool   `json:"debug" yaml:"debug"`
	File  string `json:"file" yaml:"file"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// ScenarioConfig describes a simulated liquidation. Amounts are decimal
// strings in token units; DebtToCover also accepts "max".
type ScenarioConfig struct {
	Source                  string `json:"source" yaml:"source"` // dex or lending_pool
	Adapter                 string `json:"adapter" yaml:"adapter"`
	CollateralSupply        string `json:"collateral_supply" yaml:"collateral_supply"`
	Borrow                  string `json:"borrow" yaml:"borrow"`
	DebtToCover             string `json:"debt_to_cover" yaml:"debt_to_cover"`
	MinAmountOut            string `json:"min_amount_out" yaml:"min_amount_out"`
	LiquidationBonusBps     uint64 `json:"liquidation_bonus_bps" yaml:"liquidation_bonus_bps"`
	LiquidationThresholdBps uint64 `json:"liquidation_threshold_bps" yaml:"liquidation_threshold_bps"`
	PremiumBps              uint64 `json:"premium_bps" yaml:"premium_bps"`
	PoolFee                 uint32 `json:"pool_fee" yaml:"pool_fee"`
	SwapRateNum             int64  `json:"swap_rate_num" yaml:"swap_rate_num"`
	SwapRateDen             int64  `json:"swap_rate_den" yaml:"swap_rate_den"`
	NativeCollateral        bool   `json:"native_collateral" yaml:"native_collateral"`
}

// Scenario sources
const (
	SourceDex         = "dex"
	SourceLendingPool = "lending_pool"
)

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.Chain.ChainID == 0 {
		errors = append(errors, "chain.chain_id must be specified")
	}
	if err := c.Liquidator.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("liquidator config error: %v", err))
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errors = append(errors, "metrics.namespace must be specified when metrics are enabled")
	}
	if err := c.Scenario.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("scenario config error: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (l *LiquidatorConfig) Validate() error {
	var errors []string

	required := []struct{ name, value string }{
		{"address", l.Address},
		{"owner", l.Owner},
		{"pool", l.Pool},
	}
	for _, r := range required {
		if err := checkAddress(r.value, true); err != nil {
			errors = append(errors, fmt.Sprintf("%s %v", r.name, err))
		}
	}
	if err := checkAddress(l.Factory, false); err != nil {
		errors = append(errors, fmt.Sprintf("factory %v", err))
	}
	if err := checkAddress(l.WrappedNative, false); err != nil {
		errors = append(errors, fmt.Sprintf("wrapped_native %v", err))
	}
	if l.DefaultFlashFeeTier != 0 && !dex.ValidFeeTier(l.DefaultFlashFeeTier) {
		errors = append(errors, fmt.Sprintf("default_flash_fee_tier %d is not one of %v", l.DefaultFlashFeeTier, dex.FeeTiers()))
	}
	for _, name := range sortedKeys(l.Adapters) {
		if _, err := routing.ParseTag(name); err != nil {
			errors = append(errors, fmt.Sprintf("adapter %v", err))
		}
		if err := checkAddress(l.Adapters[name], true); err != nil {
			errors = append(errors, fmt.Sprintf("adapter %s %v", name, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

func (s *ScenarioConfig) Validate() error {
	switch s.Source {
	case SourceDex, SourceLendingPool:
	default:
		return fmt.Errorf("source must be %q or %q, got %q", SourceDex, SourceLendingPool, s.Source)
	}
	if _, err := routing.ParseTag(s.Adapter); err != nil {
		return err
	}
	for _, amount := range []struct{ name, value string }{
		{"collateral_supply", s.CollateralSupply},
		{"borrow", s.Borrow},
		{"min_amount_out", s.MinAmountOut},
	} {
		if _, err := ParseAmount(amount.value); err != nil {
			return fmt.Errorf("%s: %w", amount.name, err)
		}
	}
	if s.DebtToCover != "max" {
		if _, err := ParseAmount(s.DebtToCover); err != nil {
			return fmt.Errorf("debt_to_cover: %w", err)
		}
	}
	if s.LiquidationBonusBps < 10000 {
		return fmt.Errorf("liquidation_bonus_bps must be at least 10000")
	}
	if s.LiquidationThresholdBps == 0 || s.LiquidationThresholdBps > 10000 {
		return fmt.Errorf("liquidation_threshold_bps must be in (0, 10000]")
	}
	if s.Source == SourceDex && !dex.ValidFeeTier(s.PoolFee) {
		return fmt.Errorf("pool_fee %d is not a valid fee tier", s.PoolFee)
	}
	if s.SwapRateNum <= 0 || s.SwapRateDen <= 0 {
		return fmt.Errorf("swap rate must be positive")
	}
	return nil
}

// ToLiquidatorConfig converts the deployment section
func (l *LiquidatorConfig) ToLiquidatorConfig() (liquidator.Config, error) {
	if err := l.Validate(); err != nil {
		return liquidator.Config{}, err
	}
	cfg := liquidator.Config{
		Address:             common.HexToAddress(l.Address),
		Owner:               common.HexToAddress(l.Owner),
		Pool:                common.HexToAddress(l.Pool),
		DefaultFlashFeeTier: l.DefaultFlashFeeTier,
		Adapters:            make(map[routing.Tag]common.Address, len(l.Adapters)),
	}
	if l.Factory != "" {
		cfg.Factory = common.HexToAddress(l.Factory)
	}
	if l.WrappedNative != "" {
		cfg.WrappedNative = common.HexToAddress(l.WrappedNative)
	}
	for name, addr := range l.Adapters {
		tag, err := routing.ParseTag(name)
		if err != nil {
			return liquidator.Config{}, err
		}
		cfg.Adapters[tag] = common.HexToAddress(addr)
	}
	return cfg, nil
}

// ParseAmount parses a non-negative decimal amount
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.ReplaceAll(strings.TrimSpace(s), "_", ""), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	return v, nil
}

func checkAddress(s string, required bool) error {
	if s == "" {
		if required {
			return fmt.Errorf("must be specified")
		}
		return nil
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("%q is not a hex address", s)
	}
	if required && common.HexToAddress(s) == (common.Address{}) {
		return fmt.Errorf("cannot be the zero address")
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads cfgFile over DefaultConfig, applies environment
// overrides and validates the result. YAML is chosen by extension,
// anything else is read as JSON.
func LoadConfig(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			cfgFile = ""
		}
	}

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		if isYAML(cfgFile) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = json.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes cfg as YAML or JSON depending on the extension
func SaveConfig(cfg *Config, cfgFile string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(cfgFile) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(cfgFile, data, 0o644)
}

// DefaultConfig targets the in-memory deployment the simulator builds
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			ChainID: 1,
			Name:    "mainnet",
		},
		Liquidator: LiquidatorConfig{
			Address:             DefaultLiquidatorAddress,
			Owner:               DefaultOwner,
			Pool:                DefaultPool,
			Factory:             DefaultFactory,
			WrappedNative:       DefaultWrappedNative,
			DefaultFlashFeeTier: dex.FeeMedium,
			Adapters: map[string]string{
				routing.TagMultiRouter.String(): DefaultMultiRouter,
				routing.TagUniswapV3.String():   DefaultUniswapV3,
				routing.TagDirect.String():      DefaultDirect,
			},
		},
		Logging: LoggingConfig{
			Debug: false,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: liquidator.DefaultMetricsNamespace,
		},
		Scenario: ScenarioConfig{
			Source:                  SourceLendingPool,
			Adapter:                 routing.TagUniswapV3.String(),
			CollateralSupply:        "3000000",
			Borrow:                  "2200000",
			DebtToCover:             "1000000",
			MinAmountOut:            "0",
			LiquidationBonusBps:     10500,
			LiquidationThresholdBps: 7000,
			PremiumBps:              9,
			PoolFee:                 dex.FeeMedium,
			SwapRateNum:             1,
			SwapRateDen:             1,
		},
	}
}
