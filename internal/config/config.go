// Package config provides configuration management for raysearch.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for raysearch.
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Search    SearchConfig    `yaml:"search"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatasetConfig locates the image collection and its metadata table.
type DatasetConfig struct {
	Dir        string   `yaml:"dir"`
	Metadata   string   `yaml:"metadata"`
	Extensions []string `yaml:"extensions"`
}

// ExtractorConfig configures the feature-extraction server and the
// preprocessing transform shared by build and query.
type ExtractorConfig struct {
	URL        string     `yaml:"url"`
	Model      string     `yaml:"model"`
	Device     string     `yaml:"device"`
	ImageSize  int        `yaml:"image_size"`
	Mean       [3]float64 `yaml:"mean"`
	Std        [3]float64 `yaml:"std"`
	Dimensions int        `yaml:"dimensions"`
	Timeout    Duration   `yaml:"timeout"`
	Cache      bool       `yaml:"cache"`
}

// SearchConfig holds the defaults for each kind of query.
type SearchConfig struct {
	Text  PolicyConfig `yaml:"text"`
	Image PolicyConfig `yaml:"image"`
}

// PolicyConfig is the ranking and display policy of one query kind.
type PolicyConfig struct {
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
	Sort          string  `yaml:"sort"`
	Limit         int     `yaml:"limit"`
}

// IndexingConfig configures the build pipeline.
type IndexingConfig struct {
	Workers int  `yaml:"workers"`
	Watch   bool `yaml:"watch"`
}

// StorageConfig configures where data is stored.
type StorageConfig struct {
	Path       string `yaml:"path"`
	Embeddings string `yaml:"embeddings,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Dataset: DatasetConfig{
			Dir:        "Dataset",
			Metadata:   filepath.Join("metadata", "X-ray_Metadata - Sheet1.csv"),
			Extensions: []string{".png", ".jpg", ".jpeg"},
		},
		Extractor: ExtractorConfig{
			URL:        "http://localhost:8500",
			Model:      "resnet50",
			Device:     "cpu",
			ImageSize:  224,
			Mean:       [3]float64{0.485, 0.456, 0.406},
			Std:        [3]float64{0.229, 0.224, 0.225},
			Dimensions: 2048,
			Timeout:    Duration(30 * time.Second),
			Cache:      true,
		},
		Search: SearchConfig{
			Text: PolicyConfig{
				TopK:          6,
				MinSimilarity: 0,
				Sort:          "score",
				Limit:         6,
			},
			Image: PolicyConfig{
				TopK:          10,
				MinSimilarity: 0.25,
				Sort:          "score",
				Limit:         6,
			},
		},
		Indexing: IndexingConfig{
			Workers: 4,
			Watch:   false,
		},
		Storage: StorageConfig{
			Path: filepath.Join(homeDir, ".local", "share", "raysearch"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Dataset.Dir == "" {
		return errors.New("dataset.dir is required")
	}
	if c.Dataset.Metadata == "" {
		return errors.New("dataset.metadata is required")
	}
	if c.Extractor.Model == "" {
		return errors.New("extractor.model is required")
	}
	if c.Extractor.ImageSize < 1 {
		return errors.New("extractor.image_size must be at least 1")
	}
	for i, s := range c.Extractor.Std {
		if s <= 0 {
			return fmt.Errorf("extractor.std[%d] must be positive", i)
		}
	}
	if c.Extractor.Dimensions < 0 {
		return errors.New("extractor.dimensions must not be negative")
	}
	if c.Extractor.Timeout < 0 {
		return errors.New("extractor.timeout must not be negative")
	}
	if err := c.Search.Text.validate("search.text"); err != nil {
		return err
	}
	if err := c.Search.Image.validate("search.image"); err != nil {
		return err
	}
	if c.Indexing.Workers < 1 {
		return errors.New("indexing.workers must be at least 1")
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (p PolicyConfig) validate(section string) error {
	if p.TopK < 1 {
		return fmt.Errorf("%s.top_k must be at least 1", section)
	}
	if p.Limit < 1 {
		return fmt.Errorf("%s.limit must be at least 1", section)
	}
	if p.MinSimilarity < -1 || p.MinSimilarity > 1 {
		return fmt.Errorf("%s.min_similarity must be between -1 and 1", section)
	}
	switch strings.ToLower(p.Sort) {
	case "", "score", "name":
	default:
		return fmt.Errorf("%s.sort must be 'score' or 'name'", section)
	}
	return nil
}

// SlogLevel parses the configured level name.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// Load loads configuration from the YAML file, falling back to defaults
// for any missing values.
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return Default(), nil // Use defaults if we can't find config dir
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // No config file, use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to the YAML file.
func (c *Config) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(configPath)
}

// SaveFile writes the configuration to path.
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigDir returns the directory where config files are stored.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "raysearch"), nil
}

// ConfigPath returns the path to the main config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// DataDir returns the data directory from config, creating it if needed.
func (c *Config) DataDir() (string, error) {
	if err := os.MkdirAll(c.Storage.Path, 0755); err != nil {
		return "", err
	}
	return c.Storage.Path, nil
}

// EmbeddingsPath returns the path of the persisted embedding store.
func (c *Config) EmbeddingsPath() (string, error) {
	if c.Storage.Embeddings != "" {
		return c.Storage.Embeddings, nil
	}
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "embeddings.rsx"), nil
}

// CachePath returns the path to the SQLite embedding cache.
func (c *Config) CachePath() (string, error) {
	dataDir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "cache.db"), nil
}
