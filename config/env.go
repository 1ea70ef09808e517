package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvChainID       = "FLASHLIQ_CHAIN_ID"
	EnvAddress       = "FLASHLIQ_ADDRESS"
	EnvOwner         = "FLASHLIQ_OWNER"
	EnvPool          = "FLASHLIQ_POOL"
	EnvFactory       = "FLASHLIQ_FACTORY" // "none" selects the lending pool flash loan
	EnvWrappedNative = "FLASHLIQ_WRAPPED_NATIVE"
	EnvDebug         = "FLASHLIQ_DEBUG"
	EnvLogFile       = "FLASHLIQ_LOG_FILE"
)

// LoadEnv loads environment variables from the given files, .env by
// default. Missing files are skipped and variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overrides cfg with any FLASHLIQ_* variables that are set
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvChainID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChainID, err)
		}
		cfg.Chain.ChainID = id
	}

	cfg.Liquidator.Address = GetEnvWithDefault(EnvAddress, cfg.Liquidator.Address)
	cfg.Liquidator.Owner = GetEnvWithDefault(EnvOwner, cfg.Liquidator.Owner)
	cfg.Liquidator.Pool = GetEnvWithDefault(EnvPool, cfg.Liquidator.Pool)
	cfg.Liquidator.WrappedNative = GetEnvWithDefault(EnvWrappedNative, cfg.Liquidator.WrappedNative)
	switch v := os.Getenv(EnvFactory); v {
	case "":
	case "none":
		cfg.Liquidator.Factory = ""
	default:
		cfg.Liquidator.Factory = v
	}

	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Logging.Debug = debug
	}
	cfg.Logging.File = GetEnvWithDefault(EnvLogFile, cfg.Logging.File)
	return nil
}
