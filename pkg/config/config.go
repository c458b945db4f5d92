// Package config loads the engine's single configuration document (spec
// §6 EXTERNAL INTERFACES) via viper, with live-reload support for the
// handful of keys an operator may toggle at runtime (simulationMode,
// killSwitch).
//
// Grounded on hft-bot/pkg/config's viper Load/setDefaults/validate shape
// and pkg/config/enhanced.go's WatchConfig/OnConfigChange fsnotify
// wiring, in preference to the root teacher package's manual bufio/
// strconv parser.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ChainConfig declares one enabled chain, spec §6 chains[].
type ChainConfig struct {
	ChainID     int64  `mapstructure:"chainId"`
	Name        string `mapstructure:"name"`
	RPCEndpoint string `mapstructure:"rpcEndpoint"`
	BlockTimeMs int    `mapstructure:"blockTimeMs"`
}

// TokenConfig declares one known token, spec §6 tokens{chain,symbol}.
type TokenConfig struct {
	ChainID  int64  `mapstructure:"chainId"`
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals int    `mapstructure:"decimals"`
}

// VenueConfig declares one exchange venue, spec §6 venues[].
type VenueConfig struct {
	ChainID  int64  `mapstructure:"chainId"`
	Key      string `mapstructure:"key"`
	Kind     string `mapstructure:"kind"`
	Router   string `mapstructure:"router"`
	Factory  string `mapstructure:"factory"`
	FeeBps   int64  `mapstructure:"feeBps"`
}

// ProviderConfig declares one flash-loan provider, spec §6 providers[].
type ProviderConfig struct {
	ChainID           int64    `mapstructure:"chainId"`
	Key               string   `mapstructure:"key"`
	Kind              string   `mapstructure:"kind"`
	Contract          string   `mapstructure:"contract"`
	FeeBps            int64    `mapstructure:"feeBps"`
	SupportedTokens   []string `mapstructure:"supportedTokens"`
	GasLimitHint      uint64   `mapstructure:"gasLimitHint"`
	MaxBorrowFraction decimal.Decimal `mapstructure:"maxBorrowFraction"`
}

// DataProviderConfig declares one information provider, spec §6
// dataProviders[].
type DataProviderConfig struct {
	ChainID        int64    `mapstructure:"chainId"`
	Key            string   `mapstructure:"key"`
	Capabilities   []string `mapstructure:"capabilities"`
	Priority       int      `mapstructure:"priority"`
	TimeoutMs      int      `mapstructure:"timeoutMs"`
	MaxConcurrency int      `mapstructure:"maxConcurrency"`
}

// PairConfig declares one watched token pair, spec §6 pairs[].
type PairConfig struct {
	ChainID         int64    `mapstructure:"chainId"`
	TokenA          string   `mapstructure:"tokenA"`
	TokenB          string   `mapstructure:"tokenB"`
	VenueKeys       []string `mapstructure:"venueKeys"`
	ProviderKeys    []string `mapstructure:"providerKeys"`
	MinVolume24hUSD float64  `mapstructure:"minVolume24hUsd"`
	MinTradeSizeUSD float64  `mapstructure:"minTradeSizeUsd"`
}

// Config is the complete engine configuration, spec §6.
type Config struct {
	Chains        []ChainConfig        `mapstructure:"chains"`
	Tokens        []TokenConfig        `mapstructure:"tokens"`
	Venues        []VenueConfig        `mapstructure:"venues"`
	Providers     []ProviderConfig     `mapstructure:"providers"`
	DataProviders []DataProviderConfig `mapstructure:"dataProviders"`
	Pairs         []PairConfig         `mapstructure:"pairs"`

	MinMarginBps             int64           `mapstructure:"minMarginBps"`
	MaxSlippage              decimal.Decimal `mapstructure:"maxSlippage"`
	MaxTradeSize             decimal.Decimal `mapstructure:"maxTradeSize"`
	ScanPeriodMs             int             `mapstructure:"scanPeriodMs"`
	QueueCapacity            int             `mapstructure:"queueCapacity"`
	LoadBalancing            string          `mapstructure:"loadBalancing"`
	CircuitBreakerThreshold  int             `mapstructure:"circuitBreakerThreshold"`
	CircuitBreakerCooldownMs int             `mapstructure:"circuitBreakerCooldownMs"`
	PendingDeadlineMs        int             `mapstructure:"pendingDeadlineMs"`
	DailyGasBudgetNative     map[string]decimal.Decimal `mapstructure:"dailyGasBudgetNative"`
	SimulationMode           bool            `mapstructure:"simulationMode"`
	KillSwitch               bool            `mapstructure:"killSwitch"`

	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDb"`
}

// Load reads configuration from configPath (or the default search path
// when empty), applies defaults, validates, and returns the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/arbengine")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ARBENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// WatchKillSwitch re-reads killSwitch and simulationMode on every config
// file write and invokes onChange with the fresh values — the only two
// keys spec §6 expects an operator to flip without a restart.
func WatchKillSwitch(configPath string, onChange func(killSwitch, simulationMode bool)) error {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		onChange(v.GetBool("killSwitch"), v.GetBool("simulationMode"))
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("minMarginBps", 25)
	v.SetDefault("maxSlippage", "0.001")
	v.SetDefault("scanPeriodMs", 5000)
	v.SetDefault("queueCapacity", 64)
	v.SetDefault("loadBalancing", "least-loaded")
	v.SetDefault("circuitBreakerThreshold", 5)
	v.SetDefault("circuitBreakerCooldownMs", 60_000)
	v.SetDefault("pendingDeadlineMs", 90_000)
	v.SetDefault("simulationMode", false)
	v.SetDefault("killSwitch", false)
}

var validLoadBalancingPolicies = map[string]bool{
	"round-robin":  true,
	"least-loaded": true,
	"fastest":      true,
	"priority":     true,
	"weighted":     true,
}

func validate(cfg *Config) error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	seenChains := make(map[int64]bool)
	for _, c := range cfg.Chains {
		if c.ChainID == 0 {
			return fmt.Errorf("chain %q: chainId is required", c.Name)
		}
		if c.RPCEndpoint == "" {
			return fmt.Errorf("chain %d: rpcEndpoint is required", c.ChainID)
		}
		seenChains[c.ChainID] = true
	}
	if !validLoadBalancingPolicies[cfg.LoadBalancing] {
		return fmt.Errorf("invalid loadBalancing policy: %q", cfg.LoadBalancing)
	}
	for _, p := range cfg.Pairs {
		if !seenChains[p.ChainID] {
			return fmt.Errorf("pair %s/%s references unconfigured chain %d", p.TokenA, p.TokenB, p.ChainID)
		}
		if len(p.VenueKeys) < 2 {
			return fmt.Errorf("pair %s/%s on chain %d needs at least two venues to arbitrage across", p.TokenA, p.TokenB, p.ChainID)
		}
	}
	return nil
}
