// Package config loads search and live-loop configuration with viper,
// the teacher stack's configuration library, reading from
// OLPS_SEARCH_/OLPS_LIVE_-prefixed environment variables, a config
// file, and documented defaults, in that order of precedence.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SearchConfig configures a cmd/olps-search run.
type SearchConfig struct {
	Samples     int    `mapstructure:"samples"`
	Workers     int    `mapstructure:"workers"`
	BatchSize   int    `mapstructure:"batch_size"`
	MaxSteps    int    `mapstructure:"max_steps"`
	Agent       string `mapstructure:"agent"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LiveConfig configures a cmd/olps-live run.
type LiveConfig struct {
	Agent         string `mapstructure:"agent"`
	Symbols       []string `mapstructure:"symbols"`
	Fiat          string `mapstructure:"fiat"`
	PeriodMinutes int    `mapstructure:"period_minutes"`
	ObsSteps      int    `mapstructure:"obs_steps"`
	JitterSeconds int    `mapstructure:"jitter_seconds"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
	ArtifactDir   string `mapstructure:"artifact_dir"`
	ReportAddr    string `mapstructure:"report_addr"`
}

func newViper(configPath, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("olps")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/olps-agents")
	}
	return v
}

// LoadSearch reads search configuration from configPath (or the
// default search locations/env if empty), falling back to defaults
// for anything unset.
func LoadSearch(configPath string) (SearchConfig, error) {
	v := newViper(configPath, "OLPS_SEARCH")
	v.SetDefault("samples", 200)
	v.SetDefault("workers", 4)
	v.SetDefault("batch_size", 1)
	v.SetDefault("max_steps", 0)
	v.SetDefault("agent", "ons")
	v.SetDefault("metrics_addr", ":9090")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return SearchConfig{}, fmt.Errorf("config: reading search config: %w", err)
		}
	}

	var cfg SearchConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SearchConfig{}, fmt.Errorf("config: unmarshalling search config: %w", err)
	}
	return cfg, nil
}

// LoadLive reads live-loop configuration analogously to LoadSearch.
func LoadLive(configPath string) (LiveConfig, error) {
	v := newViper(configPath, "OLPS_LIVE")
	v.SetDefault("agent", "ons")
	v.SetDefault("symbols", []string{"BTC", "ETH"})
	v.SetDefault("fiat", "USDT")
	v.SetDefault("period_minutes", 30)
	v.SetDefault("obs_steps", 50)
	v.SetDefault("jitter_seconds", 5)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("artifact_dir", "./artifacts")
	v.SetDefault("report_addr", ":8090")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return LiveConfig{}, fmt.Errorf("config: reading live config: %w", err)
		}
	}

	var cfg LiveConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return LiveConfig{}, fmt.Errorf("config: unmarshalling live config: %w", err)
	}
	return cfg, nil
}
