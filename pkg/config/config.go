// Package config provides a reusable loader for the ledger's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"dagledger/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a ledger node. It mirrors the
// structure of the YAML files under cmd/config.
type Config struct {
	DAG struct {
		ConfirmationThreshold int           `mapstructure:"confirmation_threshold" json:"confirmation_threshold"`
		TipCap                int           `mapstructure:"tip_cap" json:"tip_cap"`
		CheckpointPath        string        `mapstructure:"checkpoint_path" json:"checkpoint_path"`
		GhostInterval         time.Duration `mapstructure:"ghost_interval" json:"ghost_interval"`
	} `mapstructure:"dag" json:"dag"`

	Genesis struct {
		SecretKeyFile string `mapstructure:"secret_key_file" json:"secret_key_file"`
		PublicKeyFile string `mapstructure:"public_key_file" json:"public_key_file"`
	} `mapstructure:"genesis" json:"genesis"`

	API struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"api" json:"api"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("dag.confirmation_threshold", 4)
	viper.SetDefault("dag.tip_cap", 10)
	viper.SetDefault("dag.checkpoint_path", "dag.json")
	viper.SetDefault("dag.ghost_interval", "60s")
	viper.SetDefault("api.listen_addr", ":8080")
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LEDGER_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LEDGER_ENV", ""))
}
