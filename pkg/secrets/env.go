package secrets

import (
	"context"
	"os"
	"strings"
)

// defaultEnvPrefix namespaces secret environment variables.
const defaultEnvPrefix = "STACKQL_DEPLOY_SECRET_"

// EnvProvider reads secrets from process environment variables. A key
// like "db-password" is looked up as STACKQL_DEPLOY_SECRET_DB_PASSWORD
// first, then under its literal name.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider with the default
// variable prefix.
func NewEnvProvider() *EnvProvider {
	return NewEnvProviderWithPrefix(defaultEnvPrefix)
}

// NewEnvProviderWithPrefix creates an environment provider with a
// custom variable prefix.
func NewEnvProviderWithPrefix(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string {
	return "env"
}

func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	if value, ok := os.LookupEnv(p.envName(key)); ok {
		return value, nil
	}
	if value, ok := os.LookupEnv(key); ok {
		return value, nil
	}
	return "", ErrSecretNotFound
}

// envName mangles a secret key into an environment variable name.
func (p *EnvProvider) envName(key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	return p.prefix + name
}
