// Package config loads user settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"photodedup/internal/hash"
	"photodedup/internal/match"
	"photodedup/internal/models"
)

const (
	defaultConfigPath = "~/.config/photodedup/config.yaml"
	defaultDBPath     = "~/.photodedup/images.db"
	defaultThumbDir   = "~/.photodedup/thumbs"
	defaultThreshold  = 10
	envPrefix         = "PHOTODEDUP"
)

// Config holds engine and CLI settings.
type Config struct {
	DBPath     string `mapstructure:"db"`
	ThumbDir   string `mapstructure:"thumb_dir"`
	ThumbSize  int    `mapstructure:"thumb_size"`
	Threshold  int    `mapstructure:"threshold"`
	Algorithm  string `mapstructure:"algorithm"`
	MaxSide    int    `mapstructure:"max_side"`
	Strategy   string `mapstructure:"strategy"`
	Policy     string `mapstructure:"policy"`
	BucketBits int    `mapstructure:"bucket_bits"`
	Workers    int    `mapstructure:"workers"`
	IOWorkers  int    `mapstructure:"io_workers"`
	NoCache    bool   `mapstructure:"no_cache"`
	LogLevel   string `mapstructure:"log_level"` // debug, info, warn, error
	LogFormat  string `mapstructure:"log_format"` // console, json
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	ioWorkers := runtime.NumCPU() / 2
	if ioWorkers < 2 {
		ioWorkers = 2
	}

	v.SetDefault("db", defaultDBPath)
	v.SetDefault("thumb_dir", defaultThumbDir)
	v.SetDefault("thumb_size", 256)
	v.SetDefault("threshold", defaultThreshold)
	v.SetDefault("algorithm", string(hash.Perception))
	v.SetDefault("max_side", hash.DefaultMaxSide)
	v.SetDefault("strategy", string(match.StrategyBKTree))
	v.SetDefault("policy", string(match.PolicyCreated))
	v.SetDefault("bucket_bits", match.DefaultBucketBits)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("io_workers", ioWorkers)
	v.SetDefault("no_cache", false)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
}

// Load reads configuration into a Config. An explicit configPath must exist;
// the default location is optional. Environment variables use the
// PHOTODEDUP_ prefix (PHOTODEDUP_THRESHOLD, PHOTODEDUP_DB, ...).
func Load(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}
	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}
	v.SetConfigFile(expanded)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config %s: %w", expanded, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.DBPath, err = expandUser(cfg.DBPath); err != nil {
		return nil, err
	}
	if cfg.ThumbDir, err = expandUser(cfg.ThumbDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any source.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	v.Unmarshal(cfg)
	cfg.DBPath, _ = expandUser(cfg.DBPath)
	cfg.ThumbDir, _ = expandUser(cfg.ThumbDir)
	return cfg
}

// Validate rejects settings that would fail every operation.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > match.MaxThreshold {
		return fmt.Errorf("%w: %d (want 0-%d)", models.ErrInvalidThreshold, c.Threshold, match.MaxThreshold)
	}
	if _, err := hash.ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if _, err := match.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if _, err := match.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.Workers < 1 || c.IOWorkers < 1 {
		return fmt.Errorf("workers must be positive (workers=%d, io_workers=%d)", c.Workers, c.IOWorkers)
	}
	if c.BucketBits < 1 || c.BucketBits > 32 {
		return fmt.Errorf("bucket_bits must be in 1-32, got %d", c.BucketBits)
	}
	return nil
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
