package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileProvider serves secrets from a flat key/value document.
type FileProvider struct {
	secrets map[string]string
}

// NewFileProvider creates a file provider from an in-memory map.
func NewFileProvider(secrets map[string]string) *FileProvider {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &FileProvider{secrets: secrets}
}

// LoadFileProvider creates a file provider from a JSON document
// containing a flat object of string values.
func LoadFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}

	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("secrets file %s must be a flat JSON object of strings: %w", path, err)
	}

	return NewFileProvider(secrets), nil
}

func (p *FileProvider) Name() string {
	return "file"
}

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	if value, ok := p.secrets[key]; ok {
		return value, nil
	}
	return "", ErrSecretNotFound
}
