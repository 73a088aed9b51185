package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig holds tunable ledger engine policy. It lives in a config file
// rather than the environment so operators can adjust it without a restart.
type EngineConfig struct {
	ConflictRetryAttempts int   `mapstructure:"conflictRetryAttempts"`
	MaxPointsPerBurn      int64 `mapstructure:"maxPointsPerBurn"`
	SweepBatchSize        int   `mapstructure:"sweepBatchSize"`
	SweepIntervalSeconds  int   `mapstructure:"sweepIntervalSeconds"`
	SweepRunTimeoutSecs   int   `mapstructure:"sweepRunTimeoutSeconds"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ConflictRetryAttempts: 3,
		MaxPointsPerBurn:      1_000_000,
		SweepBatchSize:        100,
		SweepIntervalSeconds:  60,
		SweepRunTimeoutSecs:   30,
	}
}

// EngineConfigHolder keeps the current engine policy and swaps it atomically
// when the backing file changes.
type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/loyara/config")
	v.AddConfigPath("/etc/loyara")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LOYARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		defaults := DefaultEngineConfig()
		v.SetDefault("engine.conflictRetryAttempts", defaults.ConflictRetryAttempts)
		v.SetDefault("engine.maxPointsPerBurn", defaults.MaxPointsPerBurn)
		v.SetDefault("engine.sweepBatchSize", defaults.SweepBatchSize)
		v.SetDefault("engine.sweepIntervalSeconds", defaults.SweepIntervalSeconds)
		v.SetDefault("engine.sweepRunTimeoutSeconds", defaults.SweepRunTimeoutSecs)
	}

	holder := &EngineConfigHolder{}
	holder.store(loadEngineConfig(v))

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(_ fsnotify.Event) {
			holder.store(loadEngineConfig(v))
			log.Println("engine config reloaded")
		})
		v.WatchConfig()
	}

	return holder, nil
}

// Current returns the active engine policy.
func (h *EngineConfigHolder) Current() EngineConfig {
	if cfg, ok := h.current.Load().(EngineConfig); ok {
		return cfg
	}
	return DefaultEngineConfig()
}

func (h *EngineConfigHolder) store(cfg EngineConfig) {
	h.current.Store(cfg)
}

func loadEngineConfig(v *viper.Viper) EngineConfig {
	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		log.Printf("invalid engine config, using defaults: %v", err)
		return DefaultEngineConfig()
	}
	return cfg.withDefaults()
}

func (c EngineConfig) withDefaults() EngineConfig {
	defaults := DefaultEngineConfig()
	if c.ConflictRetryAttempts <= 0 {
		c.ConflictRetryAttempts = defaults.ConflictRetryAttempts
	}
	if c.MaxPointsPerBurn <= 0 {
		c.MaxPointsPerBurn = defaults.MaxPointsPerBurn
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaults.SweepBatchSize
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = defaults.SweepIntervalSeconds
	}
	if c.SweepRunTimeoutSecs <= 0 {
		c.SweepRunTimeoutSecs = defaults.SweepRunTimeoutSecs
	}
	return c
}
