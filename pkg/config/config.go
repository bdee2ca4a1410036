package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/agrilo/pkg/types"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file configuration
const (
	EnvAPIURL   = "AGRILO_API_URL"
	EnvDataDir  = "AGRILO_DATA_DIR"
	EnvLanguage = "AGRILO_LANG"
	EnvTokenKey = "AGRILO_TOKEN_KEY"
	EnvLogLevel = "AGRILO_LOG_LEVEL"
)

const (
	DefaultAPIURL       = "http://localhost:5000/api"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// Config is the client configuration
type Config struct {
	APIURL       string        `yaml:"apiUrl"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
	DataDir      string        `yaml:"dataDir"`
	Language     string        `yaml:"language"`
	MetricsAddr  string        `yaml:"metricsAddr,omitempty"`
	Log          LogConfig     `yaml:"log"`

	// TokenPassphrase seals the stored access token; never read from the file
	TokenPassphrase string `yaml:"-"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		APIURL:       DefaultAPIURL,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		DataDir:      defaultDataDir(),
		Language:     types.DefaultLanguage,
		Log:          LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "agrilo")
	}
	return ".agrilo"
}

// DefaultPath is where Load looks when no path is given
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvLanguage); ok && v != "" {
		c.Language = v
	}
	if v, ok := lookup(EnvTokenKey); ok {
		c.TokenPassphrase = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration and normalizes the API URL
func (c *Config) Validate() error {
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api url %q: %w", c.APIURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must be http or https, got %q", c.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api url %q has no host", c.APIURL)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least 1s, got %s", c.PollInterval)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}

	lang, err := types.NormalizeLanguage(c.Language)
	if err != nil {
		return err
	}
	c.Language = lang
	return nil
}

// Save writes the configuration as YAML, creating parent directories
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
