// Package config loads snipvault settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvConfigPath = "SNIPVAULT_CONFIG"
	EnvDBPath     = "SNIPVAULT_DB_PATH"
	EnvModelsDir  = "SNIPVAULT_MODELS_DIR"
	EnvModelURL   = "SNIPVAULT_MODEL_URL"
	EnvORTLibrary = "SNIPVAULT_ORT_LIBRARY"
	EnvLogLevel   = "SNIPVAULT_LOG_LEVEL"
)

// Defaults
const (
	DefaultModelName       = "all-MiniLM-L6-v2"
	DefaultBaseURL         = "https://huggingface.co/sentence-transformers/{model}/resolve/main"
	DefaultWeightsPath     = "onnx/model.onnx"
	DefaultDimension       = 384
	DefaultMaxChars        = 2000
	DefaultMaxTokens       = 512
	DefaultCacheSize       = 1000
	DefaultMinScore        = 0.3
	DefaultDownloadTimeout = 10 * time.Minute
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full snipvault configuration
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	DBPath    string          `yaml:"db_path"`
	Log       LogConfig       `yaml:"log"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ModelConfig describes where the model lives and how to fetch it
type ModelConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"` // Tag stored with every embedding; defaults to Name
	Dir             string        `yaml:"dir"`     // Root directory holding one subdirectory per model
	BaseURL         string        `yaml:"base_url"`
	WeightsPath     string        `yaml:"weights_path"` // Relative to BaseURL
	ORTLibrary      string        `yaml:"ort_library"`  // Path to the onnxruntime shared library
	BackfillOnLoad  bool          `yaml:"backfill_on_load"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// EmbeddingConfig holds the embedding pipeline bounds
type EmbeddingConfig struct {
	Dimension        int  `yaml:"dimension"`
	MaxChars         int  `yaml:"max_chars"`
	MaxTokens        int  `yaml:"max_tokens"`
	AddSpecialTokens bool `yaml:"add_special_tokens"`
	CacheSize        int  `yaml:"cache_size"`
}

// SearchConfig holds ranking parameters
type SearchConfig struct {
	MinScore float64 `yaml:"min_score"` // Zero selects the default floor
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the HTTP endpoint
}

// Default returns a configuration populated with default values
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Model: ModelConfig{
			Name:            DefaultModelName,
			BaseURL:         DefaultBaseURL,
			WeightsPath:     DefaultWeightsPath,
			BackfillOnLoad:  true,
			DownloadTimeout: DefaultDownloadTimeout,
		},
		Embedding: EmbeddingConfig{
			Dimension: DefaultDimension,
			MaxChars:  DefaultMaxChars,
			MaxTokens: DefaultMaxTokens,
			CacheSize: DefaultCacheSize,
		},
		Search: SearchConfig{
			MinScore: DefaultMinScore,
		},
	}
}

// Load reads the config file at path (or the default location when path is
// empty), applies environment overrides and fills derived paths. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvModelsDir); v != "" {
		c.Model.Dir = v
	}
	if v := os.Getenv(EnvModelURL); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv(EnvORTLibrary); v != "" {
		c.Model.ORTLibrary = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// resolvePaths expands ~ and derives unset paths from the data directory
func (c *Config) resolvePaths() error {
	var err error
	if c.DataDir == "" {
		if c.DataDir, err = DefaultDataDir(); err != nil {
			return err
		}
	}
	if c.DataDir, err = ExpandPath(c.DataDir); err != nil {
		return err
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "snipvault.db")
	}
	if c.DBPath != ":memory:" {
		if c.DBPath, err = ExpandPath(c.DBPath); err != nil {
			return err
		}
	}

	if c.Model.Dir == "" {
		c.Model.Dir = filepath.Join(c.DataDir, "models")
	}
	if c.Model.Dir, err = ExpandPath(c.Model.Dir); err != nil {
		return err
	}
	if c.Model.ORTLibrary, err = ExpandPath(c.Model.ORTLibrary); err != nil {
		return err
	}

	if c.Model.Version == "" {
		c.Model.Version = c.Model.Name
	}
	return nil
}

// Validate rejects settings the embedding pipeline cannot work with
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("%w: model.name is required", ErrInvalidConfig)
	}
	if c.Model.BaseURL == "" {
		return fmt.Errorf("%w: model.base_url is required", ErrInvalidConfig)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding.dimension must be positive, got %d", ErrInvalidConfig, c.Embedding.Dimension)
	}
	if c.Embedding.MaxChars <= 0 {
		return fmt.Errorf("%w: embedding.max_chars must be positive, got %d", ErrInvalidConfig, c.Embedding.MaxChars)
	}
	if c.Embedding.MaxTokens < 0 {
		return fmt.Errorf("%w: embedding.max_tokens cannot be negative", ErrInvalidConfig)
	}
	if c.Search.MinScore < -1 || c.Search.MinScore > 1 {
		return fmt.Errorf("%w: search.min_score must be within [-1, 1], got %v", ErrInvalidConfig, c.Search.MinScore)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// NewLogger builds the slog logger described by the log section
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
}

// Save writes the config to path as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DefaultPath returns $XDG_CONFIG_HOME/snipvault/config.yaml
func DefaultPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "snipvault", "config.yaml"), nil
}

// DefaultDataDir returns $XDG_DATA_HOME/snipvault
func DefaultDataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "snipvault"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
