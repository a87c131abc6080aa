package config

// Package config provides a reusable loader for STAT7 configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stat7/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a STAT7 node. It mirrors
// the structure of the YAML files under cmd/stat7/config.
type Config struct {
	Server struct {
		ListenAddr      string        `mapstructure:"listen_addr" json:"listen_addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
	} `mapstructure:"server" json:"server"`

	Stat7 struct {
		// EmbeddingProvider selects the C3 variant: "local" or "remote:<url>".
		EmbeddingProvider string `mapstructure:"embedding_provider" json:"embedding_provider"`
		EmbeddingDim      int    `mapstructure:"embedding_dim" json:"embedding_dim"`

		ThetaMerge      float64 `mapstructure:"theta_merge" json:"theta_merge"`
		ThetaEdge       float64 `mapstructure:"theta_edge" json:"theta_edge"`
		HeatDecayLambda float64 `mapstructure:"heat_decay_lambda" json:"heat_decay_lambda"`

		CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
		WFCIterations   int `mapstructure:"wfc_iterations" json:"wfc_iterations"`

		ConservatorEnabledRealms []string `mapstructure:"conservator_enabled_realms" json:"conservator_enabled_realms"`

		PolicySet map[string][]string `mapstructure:"policy_set" json:"policy_set"`

		// AuthTokens maps bearer tokens to requester ids for the C7 recovery
		// gate's StaticAuthenticator.
		AuthTokens map[string]string `mapstructure:"auth_tokens" json:"-"`

		RateLimits struct {
			RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`
			Burst             int     `mapstructure:"burst" json:"burst"`
		} `mapstructure:"rate_limits" json:"rate_limits"`
	} `mapstructure:"stat7" json:"stat7"`

	Storage struct {
		DataDir string `mapstructure:"data_dir" json:"data_dir"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Default returns a Config populated with the spec's documented defaults
// (§6), used when no configuration file is present.
func Default() Config {
	var c Config
	c.Server.ListenAddr = ":8088"
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Stat7.EmbeddingProvider = "local"
	c.Stat7.EmbeddingDim = 64
	c.Stat7.ThetaMerge = 0.92
	c.Stat7.ThetaEdge = 0.75
	c.Stat7.HeatDecayLambda = 0.0005
	c.Stat7.CacheTTLSeconds = 300
	c.Stat7.WFCIterations = 7
	c.Stat7.ConservatorEnabledRealms = nil
	c.Stat7.PolicySet = nil
	c.Stat7.AuthTokens = nil
	c.Stat7.RateLimits.RequestsPerSecond = 50
	c.Stat7.RateLimits.Burst = 100
	c.Storage.DataDir = "./data"
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config = Default()

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded. Missing
// config files are not an error: Default() values remain in effect.
func Load(env string) (*Config, error) {
	AppConfig = Default()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/stat7/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
			}
		}
	}

	// Load a .env file ahead of AutomaticEnv, mirroring the teacher's
	// walletserver/config/config.go; a missing .env is not an error, since
	// most deployments set environment variables directly.
	_ = godotenv.Load(".env")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the STAT7_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("STAT7_ENV", ""))
}
