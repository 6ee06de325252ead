package config

import (
	"fmt"
	"net/url"

	"github.com/go-octopus/octopus"
	"github.com/go-octopus/octopus/limiter"
	"github.com/go-octopus/octopus/site"
	"github.com/go-octopus/octopus/store"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Threads < 1 {
		return fmt.Errorf("engine.threads must be >= 1, got %d", cfg.Engine.Threads)
	}
	if cfg.Engine.QueueFactor < 1 {
		return fmt.Errorf("engine.queue_factor must be >= 1, got %d", cfg.Engine.QueueFactor)
	}
	if cfg.Engine.Retries < 0 {
		return fmt.Errorf("engine.retries must be >= 0, got %d", cfg.Engine.Retries)
	}
	if cfg.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must be >= 0, got %d", cfg.Engine.MaxDepth)
	}

	switch cfg.Store.Type {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite store")
		}
	case "redis":
		if cfg.Store.Addr == "" {
			return fmt.Errorf("store.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("store.type %q is not supported (valid: memory, sqlite, redis)", cfg.Store.Type)
	}

	for i, sc := range cfg.Sites {
		if sc.Host == "" {
			return fmt.Errorf("sites[%d].host must not be empty", i)
		}
		if sc.Interval < 0 {
			return fmt.Errorf("sites[%d].interval must be >= 0", i)
		}
		if sc.Capacity < 0 {
			return fmt.Errorf("sites[%d].capacity must be >= 0", i)
		}
		if sc.Timeout < 0 {
			return fmt.Errorf("sites[%d].timeout must be >= 0", i)
		}
		if sc.Proxy != "" {
			if _, err := url.Parse(sc.Proxy); err != nil {
				return fmt.Errorf("sites[%d]: invalid proxy URL %q: %w", i, sc.Proxy, err)
			}
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// Build assembles engine options from the configuration: the store
// backend, per-site policies, and engine tuning. The store is returned
// alongside the options because the engine does not close it; callers
// close it once the crawl is done, and append their processors and
// logger before calling octopus.New.
func Build(cfg *Config) (store.Store, []octopus.Option, error) {
	st, err := BuildStore(&cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	opts := []octopus.Option{
		octopus.WithStore(st),
		octopus.WithThreads(cfg.Engine.Threads),
		octopus.WithQueueFactor(cfg.Engine.QueueFactor),
		octopus.WithRetries(cfg.Engine.Retries),
		octopus.WithMaxDepth(cfg.Engine.MaxDepth),
	}

	if len(cfg.Sites) > 0 {
		sites := make([]*site.Site, 0, len(cfg.Sites))
		for i := range cfg.Sites {
			sites = append(sites, buildSite(&cfg.Sites[i]))
		}
		opts = append(opts, octopus.WithSites(sites...))
	}

	return st, opts, nil
}

// BuildStore opens the request store named by the store section. The
// stats subcommand uses it directly, without an engine.
func BuildStore(sc *StoreConfig) (store.Store, error) {
	switch sc.Type {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		var opts []store.SQLiteOption
		if sc.Table != "" {
			opts = append(opts, store.WithTable(sc.Table))
		}
		return store.NewSQLite(sc.Path, opts...)
	case "redis":
		var opts []store.RedisOption
		if sc.Prefix != "" {
			opts = append(opts, store.WithPrefix(sc.Prefix))
		}
		if sc.DB != 0 {
			opts = append(opts, store.WithDB(sc.DB))
		}
		if sc.Password != "" {
			opts = append(opts, store.WithPassword(sc.Password))
		}
		return store.NewRedis(sc.Addr, opts...)
	default:
		return nil, fmt.Errorf("store.type %q is not supported (valid: memory, sqlite, redis)", sc.Type)
	}
}

func buildSite(sc *SiteConfig) *site.Site {
	var opts []site.Option
	if sc.Interval > 0 {
		opts = append(opts, site.WithLimiter(limiter.New(sc.Interval, sc.Capacity)))
	}
	if len(sc.Headers) > 0 {
		opts = append(opts, site.WithHeaders(sc.Headers))
	}
	if sc.Proxy != "" {
		opts = append(opts, site.WithProxy(sc.Proxy))
	}
	if sc.Encoding != "" {
		opts = append(opts, site.WithEncoding(sc.Encoding))
	}
	if sc.Timeout > 0 {
		opts = append(opts, site.WithTimeout(sc.Timeout))
	}
	return site.New(sc.Host, opts...)
}
