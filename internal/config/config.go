// Package config loads the server-facing configuration surface (§6):
// prepared-query cache capacity, snapshot poll interval, certificate
// verify timeout, and the default query bounds (min-confidence,
// max-hops). Values come from an optional `.axiograph.toml` file and
// `AXIOGRAPH_`-prefixed environment variables, following the teacher's
// viper-based loading convention.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "AXIOGRAPH"

// Config is the resolved configuration, after defaults, file, and env
// overrides have all been applied.
type Config struct {
	// PreparedCacheCapacity bounds the prepared-query LRU (§4.L).
	PreparedCacheCapacity int `mapstructure:"prepared_cache_capacity"`
	// PollInterval is how often a replica checks the accepted-plane/
	// PathDB HEAD pointers for a change (§4.N Sync).
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// VerifyTimeout bounds certificate verification; zero disables the
	// timeout.
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
	// MinConfidence is the default minimum edge confidence applied to a
	// query that does not specify its own (§4.K), in [0,1].
	MinConfidence float64 `mapstructure:"min_confidence"`
	// MaxHops is the default path-traversal hop bound applied to a query
	// that does not specify its own (§4.K); 0 means epsilon-only (no
	// traversal), negative means unbounded.
	MaxHops int `mapstructure:"max_hops"`
}

// Defaults mirror §6's stated defaults: LRU capacity 32, 2s poll, verify
// disabled, unset confidence floor, hop bound 0 (epsilon-only).
func Defaults() Config {
	return Config{
		PreparedCacheCapacity: 32,
		PollInterval:          2 * time.Second,
		VerifyTimeout:         0,
		MinConfidence:         0,
		MaxHops:               0,
	}
}

// Load resolves configuration from defaults, then an optional TOML file
// at configPath (skipped if configPath is empty or the file does not
// exist), then AXIOGRAPH_-prefixed environment variables, in ascending
// priority.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	defaults := Defaults()
	v.SetDefault("prepared_cache_capacity", defaults.PreparedCacheCapacity)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("verify_timeout", defaults.VerifyTimeout)
	v.SetDefault("min_confidence", defaults.MinConfidence)
	v.SetDefault("max_hops", defaults.MaxHops)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for _, key := range []string{
		"prepared_cache_capacity", "poll_interval", "verify_timeout", "min_confidence", "max_hops",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	decodeDuration := func(opts *mapstructure.DecoderConfig) {
		opts.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}
	if err := v.Unmarshal(&cfg, decodeDuration); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values rather than silently clamping
// them (§6).
func (c Config) Validate() error {
	if c.PreparedCacheCapacity <= 0 {
		return fmt.Errorf("config: prepared_cache_capacity must be positive, got %d", c.PreparedCacheCapacity)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.VerifyTimeout < 0 {
		return fmt.Errorf("config: verify_timeout must be non-negative, got %v", c.VerifyTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %v", c.PollInterval)
	}
	return nil
}
