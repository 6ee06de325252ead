package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a YAML file and the environment.
// Priority (highest to lowest): env vars > config file > defaults.
// When path is empty the default locations are searched and a missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("OCTOPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("octopus")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".octopus"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so every key is known
// to the environment binding.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.threads", cfg.Engine.Threads)
	v.SetDefault("engine.queue_factor", cfg.Engine.QueueFactor)
	v.SetDefault("engine.retries", cfg.Engine.Retries)
	v.SetDefault("engine.max_depth", cfg.Engine.MaxDepth)

	v.SetDefault("store.type", cfg.Store.Type)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.table", cfg.Store.Table)
	v.SetDefault("store.addr", cfg.Store.Addr)
	v.SetDefault("store.prefix", cfg.Store.Prefix)
	v.SetDefault("store.db", cfg.Store.DB)
	v.SetDefault("store.password", cfg.Store.Password)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
