// Package config provides configuration loading and structs for katachi.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/katachi/internal/featurestore"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Features  FeaturesConfig  `yaml:"features"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Storage   StorageConfig   `yaml:"storage"`
	Watch     WatchConfig     `yaml:"watch"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestsPerSecond limits the retrieve endpoint; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SplitConfig names one dataset split and the directory holding its images.
type SplitConfig struct {
	Name     string `yaml:"name"`
	ImageDir string `yaml:"image_dir"`
}

// FeaturesConfig holds where artifacts live and which splits feed them.
type FeaturesConfig struct {
	Directory  string        `yaml:"directory"`
	Splits     []SplitConfig `yaml:"splits"`
	Extensions []string      `yaml:"extensions"`
	// Images declaring more pixels, or a longer-to-shorter side ratio, are rejected before decoding.
	MaxPixels      int64   `yaml:"max_pixels"`
	MaxAspectRatio float64 `yaml:"max_aspect_ratio"`
}

// SplitNames returns the configured split names in load order.
func (f *FeaturesConfig) SplitNames() []string {
	names := make([]string, len(f.Splits))
	for i, s := range f.Splits {
		names[i] = s.Name
	}
	return names
}

// EmbeddingConfig holds image encoder settings.
type EmbeddingConfig struct {
	Backend        string `yaml:"backend"`
	ModelPath      string `yaml:"model_path"`
	ModelName      string `yaml:"model_name"`
	RuntimeLibrary string `yaml:"runtime_library"`
	Dimensions     int    `yaml:"dimensions"`
	ImageSize      int    `yaml:"image_size"`
	CacheSize      int    `yaml:"cache_size"`
}

// RetrievalConfig holds K limits.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// StorageConfig holds the run ledger location.
type StorageConfig struct {
	LedgerPath string `yaml:"ledger_path"`
}

// WatchConfig holds split directory watch settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Debounce returns the debounce interval as a duration.
func (w *WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// CatalogConfig holds the metadata catalog pipeline settings.
type CatalogConfig struct {
	RawPath          string        `yaml:"raw_path"`
	StagePath        string        `yaml:"stage_path"`
	FinalPath        string        `yaml:"final_path"`
	Retries          *int          `yaml:"retries"`
	ScheduleInterval time.Duration `yaml:"schedule_interval"`
}

// RetriesOrDefault returns the number of extra attempts; defaults to 1 when unset.
func (c *CatalogConfig) RetriesOrDefault() int {
	if c.Retries != nil && *c.Retries >= 0 {
		return *c.Retries
	}
	return 1
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Features.Directory = expandPath(cfg.Features.Directory, configDir)
	for i := range cfg.Features.Splits {
		cfg.Features.Splits[i].ImageDir = expandPath(cfg.Features.Splits[i].ImageDir, configDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Embedding.RuntimeLibrary != "" {
		cfg.Embedding.RuntimeLibrary = expandPath(cfg.Embedding.RuntimeLibrary, configDir)
	}
	cfg.Storage.LedgerPath = expandPath(cfg.Storage.LedgerPath, configDir)
	cfg.Catalog.RawPath = expandPath(cfg.Catalog.RawPath, configDir)
	cfg.Catalog.StagePath = expandPath(cfg.Catalog.StagePath, configDir)
	cfg.Catalog.FinalPath = expandPath(cfg.Catalog.FinalPath, configDir)

	return &cfg, nil
}

// Validate reports configuration that defaults cannot repair.
func Validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Features.Splits))
	for i, s := range cfg.Features.Splits {
		if s.Name == "" {
			return fmt.Errorf("features.splits[%d]: name is required", i)
		}
		if err := featurestore.ValidateSplit(s.Name); err != nil {
			return fmt.Errorf("features.splits[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("features.splits[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.ImageDir == "" {
			return fmt.Errorf("features.splits[%d]: image_dir is required", i)
		}
	}
	if cfg.Features.MaxPixels < 0 {
		return fmt.Errorf("features.max_pixels must not be negative")
	}
	if cfg.Features.MaxAspectRatio < 1 {
		return fmt.Errorf("features.max_aspect_ratio (%g) must be at least 1", cfg.Features.MaxAspectRatio)
	}
	if cfg.Retrieval.DefaultK > cfg.Retrieval.MaxK {
		return fmt.Errorf("retrieval.default_k (%d) exceeds max_k (%d)", cfg.Retrieval.DefaultK, cfg.Retrieval.MaxK)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
