// Package config loads the catalog's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStateDir = ".fcat"
	DefaultFileName = "config.yaml"
)

type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Scan    ScanConfig    `yaml:"scan"`
	Remote  RemoteConfig  `yaml:"remote"`
	Fusion  FusionConfig  `yaml:"fusion"`
	Search  SearchConfig  `yaml:"search"`
	Log     LogConfig     `yaml:"log"`
	Daemon  DaemonConfig  `yaml:"daemon"`
}

type CatalogConfig struct {
	DBPath string `yaml:"db_path"`
	// Backend is the free-text index: sqlite or bleve.
	Backend   string `yaml:"backend"`
	BlevePath string `yaml:"bleve_path"`
}

type ScanConfig struct {
	Roots         []string `yaml:"roots"`
	StateDir      string   `yaml:"state_dir"`
	BatchSize     int      `yaml:"batch_size"`
	Exclude       []string `yaml:"exclude"`
	RespectIgnore bool     `yaml:"respect_ignore"`
	SkipHidden    bool     `yaml:"skip_hidden"`
	Debounce      string   `yaml:"debounce"`

	DebounceDuration time.Duration `yaml:"-"`
}

type RemoteConfig struct {
	BaseURL   string   `yaml:"base_url"`
	TokenEnv  string   `yaml:"token_env"`
	FolderIDs []string `yaml:"folder_ids"`
	PageSize  int      `yaml:"page_size"`
	BatchSize int      `yaml:"batch_size"`
	Timeout   string   `yaml:"timeout"`

	TimeoutDuration time.Duration `yaml:"-"`
}

type FusionConfig struct {
	// Policy is best or all.
	Policy    string `yaml:"policy"`
	BatchSize int    `yaml:"batch_size"`
}

type SearchConfig struct {
	CacheSize int `yaml:"cache_size"`
	PageSize  int `yaml:"page_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type DaemonConfig struct {
	Listen string `yaml:"listen"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path. A missing file yields the defaults; an empty path looks
// for config.yaml under the default state directory.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(DefaultStateDir, DefaultFileName)
	}
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scan.StateDir == "" {
		c.Scan.StateDir = DefaultStateDir
	}
	if c.Catalog.DBPath == "" {
		c.Catalog.DBPath = filepath.Join(c.Scan.StateDir, "catalog.db")
	}
	if c.Catalog.Backend == "" {
		c.Catalog.Backend = "sqlite"
	}
	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = 200
	}
	if c.Scan.Debounce == "" {
		c.Scan.Debounce = "200ms"
	}
	if c.Remote.TokenEnv == "" {
		c.Remote.TokenEnv = "FCAT_REMOTE_TOKEN"
	}
	if c.Remote.PageSize == 0 {
		c.Remote.PageSize = 1000
	}
	if c.Remote.BatchSize == 0 {
		c.Remote.BatchSize = 500
	}
	if c.Remote.Timeout == "" {
		c.Remote.Timeout = "60s"
	}
	if c.Fusion.Policy == "" {
		c.Fusion.Policy = "best"
	}
	if c.Fusion.BatchSize == 0 {
		c.Fusion.BatchSize = 1000
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = 256
	}
	if c.Search.PageSize == 0 {
		c.Search.PageSize = 50
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = "127.0.0.1:7878"
	}
}

// Validate checks values and fills the parsed durations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Catalog.Backend) {
	case "sqlite", "sqlite3", "fts5", "bleve":
	default:
		return fmt.Errorf("unknown catalog.backend %q (expected sqlite|bleve)", c.Catalog.Backend)
	}
	switch strings.ToLower(c.Fusion.Policy) {
	case "best", "all":
	default:
		return fmt.Errorf("unknown fusion.policy %q (expected best|all)", c.Fusion.Policy)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	if c.Scan.BatchSize < 1 {
		return fmt.Errorf("scan.batch_size must be >= 1")
	}
	if c.Remote.PageSize < 1 || c.Remote.PageSize > 1000 {
		return fmt.Errorf("remote.page_size must be within 1..1000")
	}
	if c.Remote.BatchSize < 1 || c.Fusion.BatchSize < 1 {
		return fmt.Errorf("batch sizes must be >= 1")
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("search.cache_size must be >= 0")
	}
	if c.Search.PageSize < 1 {
		return fmt.Errorf("search.page_size must be >= 1")
	}

	d, err := time.ParseDuration(c.Scan.Debounce)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid scan.debounce %q", c.Scan.Debounce)
	}
	c.Scan.DebounceDuration = d
	d, err = time.ParseDuration(c.Remote.Timeout)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid remote.timeout %q", c.Remote.Timeout)
	}
	c.Remote.TimeoutDuration = d
	return nil
}
