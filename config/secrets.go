package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore resolves sensitive values at startup. The environment
// implementation is the default; deployments with a vault can provide
// their own.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, fallback string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore { return &EnvironmentSecretStore{} }

func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("secret %s is not set", key)
	}
	return v, nil
}

func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, fallback string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return v
}

// LoadSecretsFromEnv overlays secret material from the environment onto
// the config. Called for production profiles after the regular load so
// secrets never have to live in config files.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) error {
	store := NewEnvironmentSecretStore()

	c.Ledger.SQL.DSN = store.GetWithDefault(ctx, "QUESTKIT_SQL_DSN", c.Ledger.SQL.DSN)
	c.Ledger.Redis.Password = store.GetWithDefault(ctx, "QUESTKIT_REDIS_PASSWORD", c.Ledger.Redis.Password)

	if raw := store.GetWithDefault(ctx, "QUESTKIT_API_KEYS", ""); raw != "" {
		keys := strings.Split(raw, ",")
		c.Security.APIKeys = c.Security.APIKeys[:0]
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, k)
			}
		}
	}
	return nil
}
