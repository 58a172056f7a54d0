// Package config provides a reusable loader for lahka node configuration
// files and environment variables, adapted from the teacher's pkg/config:
// the same viper-plus-environment-overrides loader shape, the same
// Load/LoadFromEnv two-step API, with a lahka-specific schema.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"lahka/pkg/utils"
)

// Config is the unified configuration for a lahka node.
type Config struct {
	Node struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"node" json:"node"`

	Chain struct {
		MinimumStake   int64 `mapstructure:"minimum_stake" json:"minimum_stake"`
		BlockTimeMS    int   `mapstructure:"block_time_ms" json:"block_time_ms"`
		BlockReward    int64 `mapstructure:"block_reward" json:"block_reward"`
		GasPrice       uint64 `mapstructure:"gas_price" json:"gas_price"`
		MaxTxsPerBlock int   `mapstructure:"max_txs_per_block" json:"max_txs_per_block"`
		RandSeed       int64 `mapstructure:"rand_seed" json:"rand_seed"`
	} `mapstructure:"chain" json:"chain"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Addr    string `mapstructure:"addr" json:"addr"`
	} `mapstructure:"metrics" json:"metrics"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the default configuration file, merges an optional
// environment-specific override file, then applies environment variable
// overrides via viper.AutomaticEnv. The resulting configuration is stored in
// AppConfig and returned.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LAHKA_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LAHKA_ENV", ""))
}

// Default returns a Config populated with the spec's named process
// constants, for use when no config file is present (e.g. tests, single-node
// demos).
func Default() Config {
	var c Config
	c.Chain.MinimumStake = 10
	c.Chain.BlockTimeMS = 5000
	c.Chain.BlockReward = 1
	c.Chain.GasPrice = 1
	c.Chain.MaxTxsPerBlock = 100
	c.Chain.RandSeed = 1
	c.Node.ListenAddr = ":8080"
	c.Metrics.Enabled = true
	c.Metrics.Addr = ":9090"
	c.Logging.Level = "info"
	return c
}
