package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Test loading default config
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify defaults
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Ledger.Adapter)
	assert.Equal(t, "http://localhost:8001", cfg.Catalog.BaseURL)
	assert.Equal(t, "http://localhost:8002", cfg.Wallet.BaseURL)
	assert.Equal(t, time.Minute, cfg.Settlement.ReconcileInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("QUESTKIT_LEDGER_ADAPTER", "redis")
	t.Setenv("QUESTKIT_SERVER_ADDR", ":7777")
	t.Setenv("QUESTKIT_SETTLEMENT_RECONCILE_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Ledger.Adapter)
	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Settlement.ReconcileInterval)
}

func TestLoadFromFile(t *testing.T) {
	// Create a temporary config file
	configContent := `{
		"environment": "testing",
		"server": {
			"address": ":9090"
		},
		"ledger": {
			"adapter": "memory"
		},
		"catalog": {
			"base_url": "http://catalog.internal:8001",
			"timeout": 3000000000
		}
	}`

	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(configContent)
	require.NoError(t, err)
	tmpFile.Close()

	// Load config from file
	cfg, err := LoadFromFile(tmpFile.Name())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Ledger.Adapter)
	assert.Equal(t, "http://catalog.internal:8001", cfg.Catalog.BaseURL)
}

func validTestConfig() *Config {
	cfg := DefaultConfig()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "invalid environment",
			mutate:      func(c *Config) { c.Environment = "" },
			expectError: true,
		},
		{
			name:        "invalid server timeout",
			mutate:      func(c *Config) { c.Server.ReadTimeout = 0 },
			expectError: true,
		},
		{
			name:        "unknown ledger adapter",
			mutate:      func(c *Config) { c.Ledger.Adapter = "cassandra" },
			expectError: true,
		},
		{
			name:        "relative catalog url",
			mutate:      func(c *Config) { c.Catalog.BaseURL = "/catalog" },
			expectError: true,
		},
		{
			name:        "empty wallet url",
			mutate:      func(c *Config) { c.Wallet.BaseURL = "" },
			expectError: true,
		},
		{
			name:        "zero reconcile batch",
			mutate:      func(c *Config) { c.Settlement.ReconcileBatch = 0 },
			expectError: true,
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name: "rate limit enabled without quota",
			mutate: func(c *Config) {
				c.Security.EnableRateLimit = true
				c.Security.RateLimit.RequestsPerMinute = 0
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ledger.SQL.DSN = "postgres://u:hunter2@db/questkit"
	cfg.Ledger.Redis.Password = "hunter2"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
}

func TestSecrets(t *testing.T) {
	store := NewEnvironmentSecretStore()
	t.Setenv("TEST_SECRET_KEY", "test_secret_value")

	ctx := context.Background()

	value, err := store.Get(ctx, "TEST_SECRET_KEY")
	assert.NoError(t, err)
	assert.Equal(t, "test_secret_value", value)

	_, err = store.Get(ctx, "NONEXISTENT_KEY")
	assert.Error(t, err)

	assert.Equal(t, "default", store.GetWithDefault(ctx, "NONEXISTENT_KEY", "default"))
	assert.Equal(t, "test_secret_value", store.GetWithDefault(ctx, "TEST_SECRET_KEY", "default"))
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("QUESTKIT_SQL_DSN", "postgres://u:p@db/questkit")
	t.Setenv("QUESTKIT_API_KEYS", "k1, k2")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadSecretsFromEnv(context.Background()))
	assert.Equal(t, "postgres://u:p@db/questkit", cfg.Ledger.SQL.DSN)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)
}

func TestValidateConfigPath(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())
	tmpFile.WriteString("{}")
	tmpFile.Close()

	assert.NoError(t, validateConfigPath(tmpFile.Name()))
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath("../../../etc/passwd"))
	assert.Error(t, validateConfigPath("nonexistent.json"))
}
