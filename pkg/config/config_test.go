package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAPIURL, EnvDataDir, EnvLanguage, EnvTokenKey, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "en", cfg.Language)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apiUrl: https://agri.example.com/api/
timeout: 10s
pollInterval: 15s
dataDir: /tmp/agrilo-test
language: MR
log:
  level: debug
  json: true
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://agri.example.com/api", cfg.APIURL, "trailing slash trimmed")
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, "/tmp/agrilo-test", cfg.DataDir)
	assert.Equal(t, "mr", cfg.Language)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apiUrl: http://file:5000/api\n"), 0600))

	t.Setenv(EnvAPIURL, "http://env:8000/api")
	t.Setenv(EnvLanguage, "hi")
	t.Setenv(EnvTokenKey, "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:8000/api", cfg.APIURL)
	assert.Equal(t, "hi", cfg.Language)
	assert.Equal(t, "secret", cfg.TokenPassphrase)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apiUrl: [unclosed"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"ftp scheme", func(c *Config) { c.APIURL = "ftp://x/api" }, true},
		{"no host", func(c *Config) { c.APIURL = "http:///api" }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"poll too fast", func(c *Config) { c.PollInterval = 100 * time.Millisecond }, true},
		{"no data dir", func(c *Config) { c.DataDir = "" }, true},
		{"bad language", func(c *Config) { c.Language = "fr" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.APIURL = "https://agri.example.com/api"
	cfg.TokenPassphrase = "never-written"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.APIURL, loaded.APIURL)
	assert.Equal(t, cfg.PollInterval, loaded.PollInterval)
}
