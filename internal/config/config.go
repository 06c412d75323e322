// Package config manages skedits configuration and the .skedits directory.
// It handles loading, saving, and initializing the workspace configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
)

const (
	Dir          = ".skedits"
	ConfigFile   = "config"
	CacheFile    = "cache.db"
	CacheDir     = "cache"
	SynapsesFile = "synapses.db"

	// TokenEnv overrides the service token from the config file.
	TokenEnv = "SKEDITS_TOKEN"
)

// Service configures the segmentation graph service.
type Service struct {
	URL   string `toml:"url"`
	Table string `toml:"table"`
	Token string `toml:"token,omitempty"`
	// BatchSize bounds operation-detail requests.
	BatchSize int `toml:"batch_size"`
}

// Retry configures retries of transient service errors. Durations use
// time.ParseDuration syntax.
type Retry struct {
	MaxRetries     int     `toml:"max_retries"`
	InitialBackoff string  `toml:"initial_backoff"`
	MaxBackoff     string  `toml:"max_backoff"`
	Jitter         float64 `toml:"jitter"`
}

// Cache configures the artifact cache.
type Cache struct {
	// Backend is bbolt, fs or redis.
	Backend        string `toml:"backend"`
	Path           string `toml:"path,omitempty"`
	RedisURL       string `toml:"redis_url,omitempty"`
	UseCache       bool   `toml:"use_cache"`
	ForceRecompute bool   `toml:"force_recompute"`
}

// Annotation locates the synapse table.
type Annotation struct {
	Path string `toml:"path,omitempty"`
}

// Workers bounds batch concurrency.
type Workers struct {
	Count int `toml:"count"`
}

// Log configures the logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config represents the skedits configuration
type Config struct {
	Service    Service    `toml:"service"`
	Retry      Retry      `toml:"retry"`
	Cache      Cache      `toml:"cache"`
	Annotation Annotation `toml:"annotation"`
	Workers    Workers    `toml:"workers"`
	Log        Log        `toml:"log"`

	path string // path to .skedits directory
}

// Default returns the configuration written by Initialize.
func Default() *Config {
	return &Config{
		Service: Service{BatchSize: 500},
		Retry: Retry{
			MaxRetries:     5,
			InitialBackoff: "500ms",
			MaxBackoff:     "30s",
			Jitter:         0.25,
		},
		Cache:   Cache{Backend: "bbolt", UseCache: true},
		Workers: Workers{Count: 4},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// FindRoot finds the .skedits directory by walking up from the current
// directory.
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		p := filepath.Join(dir, Dir)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a skedits workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the nearest .skedits directory.
func Load() (*Config, error) {
	root, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(root)
}

// LoadFrom loads the configuration from the given .skedits directory.
// Missing keys keep their defaults.
func LoadFrom(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Service.Token = tok
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.path = dir
	return cfg, nil
}

// Validate checks enumerated and duration fields.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "bbolt", "fs", "redis":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("config: cache backend redis needs redis_url")
	}
	if _, err := c.RetryConfig(); err != nil {
		return err
	}
	if c.Workers.Count < 0 {
		return fmt.Errorf("config: negative worker count %d", c.Workers.Count)
	}
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Path returns the path to the .skedits directory
func (c *Config) Path() string {
	return c.path
}

// CachePath returns where the file-based cache backends keep their data,
// resolved against the .skedits directory when relative.
func (c *Config) CachePath() string {
	p := c.Cache.Path
	if p == "" {
		if c.Cache.Backend == "fs" {
			p = CacheDir
		} else {
			p = CacheFile
		}
	}
	return c.resolve(p)
}

// AnnotationPath returns the synapse database path.
func (c *Config) AnnotationPath() string {
	p := c.Annotation.Path
	if p == "" {
		p = SynapsesFile
	}
	return c.resolve(p)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.path, p)
}

// RetryConfig converts the [retry] section.
func (c *Config) RetryConfig() (*chunkedgraph.RetryConfig, error) {
	rc := chunkedgraph.DefaultRetryConfig()
	rc.MaxRetries = c.Retry.MaxRetries
	rc.JitterFraction = c.Retry.Jitter
	for _, d := range []struct {
		name string
		str  string
		dst  *time.Duration
	}{
		{"initial_backoff", c.Retry.InitialBackoff, &rc.InitialBackoff},
		{"max_backoff", c.Retry.MaxBackoff, &rc.MaxBackoff},
	} {
		if d.str == "" {
			continue
		}
		v, err := time.ParseDuration(d.str)
		if err != nil {
			return nil, fmt.Errorf("config: retry.%s: %w", d.name, err)
		}
		*d.dst = v
	}
	if rc.JitterFraction < 0 || rc.JitterFraction > 1 {
		return nil, fmt.Errorf("config: retry.jitter %v outside [0, 1]", rc.JitterFraction)
	}
	return rc, nil
}

// Initialize creates a new .skedits directory in dir with the default
// configuration pointing at serviceURL and table.
func Initialize(dir, serviceURL, table string) (*Config, error) {
	p := filepath.Join(dir, Dir)

	// Check if already initialized
	if _, err := os.Stat(p); err == nil {
		return nil, fmt.Errorf("skedits workspace already exists")
	}

	if err := os.MkdirAll(p, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	cfg := Default()
	cfg.Service.URL = serviceURL
	cfg.Service.Table = table
	cfg.path = p

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(p)
		return nil, err
	}
	return cfg, nil
}
