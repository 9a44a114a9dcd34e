// Package secrets resolves secret references for --secret flags.
//
// A reference is either a bare key, resolved through the registered
// providers in priority order, or "provider:key" to target one
// provider directly. Resolved values are cached for the lifetime of
// the manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrSecretNotFound is returned when a provider has no value for a key.
var ErrSecretNotFound = errors.New("secret not found")

// Provider supplies secret values from one source.
type Provider interface {
	// Name identifies the provider in "provider:key" references.
	Name() string

	// Get returns the value for key, or ErrSecretNotFound.
	Get(ctx context.Context, key string) (string, error)
}

// Manager resolves secrets across providers.
type Manager struct {
	providers map[string]Provider
	priority  []string
	cache     *secretCache
}

// NewManager creates an empty manager with no providers registered.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		priority:  []string{},
		cache:     newSecretCache(),
	}
}

// DefaultManager creates a manager with the env provider registered.
func DefaultManager() *Manager {
	m := NewManager()
	m.RegisterProvider(NewEnvProvider())
	return m
}

// RegisterProvider adds a provider at the end of the priority order.
// Registering a provider with an existing name replaces it without
// changing its position.
func (m *Manager) RegisterProvider(p Provider) {
	name := p.Name()
	if _, exists := m.providers[name]; !exists {
		m.priority = append(m.priority, name)
	}
	m.providers[name] = p
}

// SetPriority replaces the lookup order. Names without a registered
// provider are skipped during resolution.
func (m *Manager) SetPriority(order []string) {
	m.priority = append([]string(nil), order...)
}

// Get resolves key through the providers in priority order.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.get(key); ok {
		return value, nil
	}

	for _, name := range m.priority {
		provider, ok := m.providers[name]
		if !ok {
			continue
		}
		value, err := provider.Get(ctx, key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("provider %s: %w", name, err)
		}
		m.cache.set(key, value)
		return value, nil
	}

	return "", fmt.Errorf("secret %q not found in any provider: %w", key, ErrSecretNotFound)
}

// GetFromProvider resolves key through one named provider.
func (m *Manager) GetFromProvider(ctx context.Context, providerName, key string) (string, error) {
	cacheKey := providerName + ":" + key
	if value, ok := m.cache.get(cacheKey); ok {
		return value, nil
	}

	provider, ok := m.providers[providerName]
	if !ok {
		return "", fmt.Errorf("unknown secret provider %q", providerName)
	}

	value, err := provider.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("provider %s: %w", providerName, err)
	}

	m.cache.set(cacheKey, value)
	return value, nil
}

// Resolve fetches a secret reference of the form "provider:key", or a
// bare key resolved through the priority order. A reference whose
// first segment is not a registered provider name is treated as a bare
// key, so keys containing colons still work.
func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	if name, rest, found := strings.Cut(ref, ":"); found {
		if _, known := m.providers[name]; known {
			return m.GetFromProvider(ctx, name, rest)
		}
	}
	return m.Get(ctx, ref)
}

// ClearCache drops all cached values.
func (m *Manager) ClearCache() {
	m.cache.clear()
}

// secretCache is a concurrency safe value cache.
type secretCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func newSecretCache() *secretCache {
	return &secretCache{values: make(map[string]string)}
}

func (c *secretCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.values[key]
	return value, ok
}

func (c *secretCache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *secretCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]string)
}
