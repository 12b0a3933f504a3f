package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"photodedup/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold != 10 || cfg.Algorithm != "perception" || cfg.Strategy != "bktree" || cfg.Policy != "created" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.DBPath, filepath.Join(".photodedup", "images.db")) || strings.HasPrefix(cfg.DBPath, "~") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "threshold: 6\nalgorithm: difference\npolicy: quality\ndb: " + filepath.Join(dir, "x.db") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PHOTODEDUP_STRATEGY", "pairwise")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold != 6 || cfg.Algorithm != "difference" || cfg.Policy != "quality" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Strategy != "pairwise" {
		t.Errorf("env override not applied: strategy = %q", cfg.Strategy)
	}
	if cfg.DBPath != filepath.Join(dir, "x.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("an explicit config path that does not exist should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"threshold too high", func(c *Config) { c.Threshold = 65 }, true},
		{"threshold negative", func(c *Config) { c.Threshold = -1 }, true},
		{"bad algorithm", func(c *Config) { c.Algorithm = "wavelet" }, true},
		{"bad strategy", func(c *Config) { c.Strategy = "lsh" }, true},
		{"bad policy", func(c *Config) { c.Policy = "random" }, true},
		{"no workers", func(c *Config) { c.Workers = 0 }, true},
		{"bucket bits", func(c *Config) { c.BucketBits = 40 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := Default()
	cfg.Threshold = 100
	if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidThreshold) {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}
}
