package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// WindowConfig holds the offsets (seconds from order creation) used to lay
// out a new source escrow's four time windows.
type WindowConfig struct {
	WithdrawalDelay         int64 `mapstructure:"withdrawal_delay"`
	PublicWithdrawalDelay   int64 `mapstructure:"public_withdrawal_delay"`
	CancellationDelay       int64 `mapstructure:"cancellation_delay"`
	PublicCancellationDelay int64 `mapstructure:"public_cancellation_delay"`
}

// ChainConfig holds the per-chain connection and signing parameters.
type ChainConfig struct {
	ChainID        int64             `mapstructure:"chain_id"`
	Family         string            `mapstructure:"family"` // evm, stellar, solana, memory
	RPCUrl         string            `mapstructure:"rpc_url"`
	FactoryAddress string            `mapstructure:"factory_address"`
	PrivateKey     string            `mapstructure:"private_key"`
	GasLimit       *uint64           `mapstructure:"gas_limit"`
	GasPrice       *int64            `mapstructure:"gas_price"`
	Tokens         map[string]string `mapstructure:"tokens"` // symbol -> on-chain token id
}

// Config holds the application configuration.
type Config struct {
	RelayURL        string                 `mapstructure:"relay_url"`
	OneClickToken   string                 `mapstructure:"oneclick_token"`
	StorePath       string                 `mapstructure:"store_path"`
	SafetyMargin    int64                  `mapstructure:"safety_margin"`    // seconds, see escrow window safety invariant
	SecurityDeposit int64                  `mapstructure:"security_deposit"` // smallest-unit deposit each escrow creator posts
	RescueDelay     int64                  `mapstructure:"rescue_delay"`     // seconds past public cancellation
	Slippage        int                    `mapstructure:"slippage"`         // basis points for relay submissions
	Windows         WindowConfig           `mapstructure:"windows"`
	Chains          map[string]ChainConfig `mapstructure:"chains"`
}

var globalConfig *Config

// Load reads configuration from environment variables and config file.
func Load() (*Config, error) {
	viper.SetConfigName(".stellar-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("relay_url", "http://localhost:8080")
	viper.SetDefault("safety_margin", int64(5*time.Minute/time.Second))
	viper.SetDefault("security_deposit", 1_000_000)
	viper.SetDefault("rescue_delay", int64(7*24*time.Hour/time.Second))
	viper.SetDefault("slippage", 100)
	viper.SetDefault("windows.withdrawal_delay", 60)
	viper.SetDefault("windows.public_withdrawal_delay", 600)
	viper.SetDefault("windows.cancellation_delay", 1800)
	viper.SetDefault("windows.public_cancellation_delay", 5400)

	// Read from environment variables
	viper.SetEnvPrefix("STELLAR_SWAP")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration, loading it on first use.
func Get() (*Config, error) {
	if globalConfig == nil {
		return Load()
	}
	return globalConfig, nil
}

// Set updates the global configuration.
func Set(cfg *Config) {
	globalConfig = cfg
}

// Chain returns the configuration for a named chain.
func (c *Config) Chain(name string) (ChainConfig, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return ChainConfig{}, fmt.Errorf("chain '%s' not configured", name)
	}
	return chain, nil
}

// ChainIDs returns the chain-name to chain-id table for registry
// construction.
func (c *Config) ChainIDs() map[string]int64 {
	ids := make(map[string]int64, len(c.Chains))
	for name, chain := range c.Chains {
		ids[name] = chain.ChainID
	}
	return ids
}

// TokenTables returns the chain-name to token table for registry
// construction.
func (c *Config) TokenTables() map[string]map[string]string {
	tokens := make(map[string]map[string]string, len(c.Chains))
	for name, chain := range c.Chains {
		tokens[name] = chain.Tokens
	}
	return tokens
}
