// Package exportstore reads and writes stack export documents.
//
// A document location is a URL whose scheme selects the storage
// backend: s3://, gs://, azurerm://, file:// or a bare filesystem
// path. Backends register themselves from their own packages, so a
// program must import the backends it wants to use:
//
//	import (
//		_ "github.com/stackql/stackql-deploy/pkg/exportstore/local"
//		_ "github.com/stackql/stackql-deploy/pkg/exportstore/s3"
//	)
package exportstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// ErrNotFound is returned when no document exists at a location.
var ErrNotFound = errors.New("export document not found")

// Store is a single storage backend.
type Store interface {
	// Type returns the backend's registered name.
	Type() string

	// Read opens the document at key. Returns ErrNotFound when the
	// document does not exist.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Write stores the document at key, replacing any previous one.
	Write(ctx context.Context, key string, data io.Reader) error
}

// Factory constructs a Store from backend specific configuration.
type Factory func(config map[string]string) (Store, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a backend available under the given name. It is
// intended to be called from backend package init functions.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("exportstore: Register called twice for backend " + name)
	}
	factories[name] = factory
}

// Create instantiates a registered backend by name.
func Create(name string, config map[string]string) (Store, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown export store backend %q (missing import?)", name)
	}
	return factory(config)
}

// Read fetches the document at location.
func Read(ctx context.Context, location string) ([]byte, error) {
	loc, err := parseLocation(location)
	if err != nil {
		return nil, err
	}

	store, err := Create(loc.backend, loc.config)
	if err != nil {
		return nil, err
	}

	reader, err := store.Read(ctx, loc.key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// Write stores data at location, replacing any existing document.
func Write(ctx context.Context, location string, data []byte) error {
	loc, err := parseLocation(location)
	if err != nil {
		return err
	}

	store, err := Create(loc.backend, loc.config)
	if err != nil {
		return err
	}

	return store.Write(ctx, loc.key, bytes.NewReader(data))
}

// location is a parsed document address: the backend to use, its
// configuration, and the object key within it.
type location struct {
	backend string
	config  map[string]string
	key     string
}

// parseLocation maps a location URL onto a backend. Query parameters
// become backend configuration, so credentials and endpoints can ride
// along with the address (s3://bucket/key.json?endpoint=...).
func parseLocation(raw string) (location, error) {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return location{backend: "local", key: raw}, nil
	}

	switch scheme {
	case "file":
		return location{backend: "local", key: rest}, nil

	case "s3", "gs", "azurerm":
		u, err := url.Parse(raw)
		if err != nil {
			return location{}, fmt.Errorf("invalid export location %q: %w", raw, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return location{}, fmt.Errorf("export location %q must name a bucket or container and an object key", raw)
		}

		config := make(map[string]string)
		for k, v := range u.Query() {
			if len(v) > 0 {
				config[k] = v[0]
			}
		}

		backend := scheme
		switch scheme {
		case "s3":
			config["bucket"] = u.Host
		case "gs":
			backend = "gcs"
			config["bucket"] = u.Host
		case "azurerm":
			config["container_name"] = u.Host
		}
		return location{backend: backend, config: config, key: key}, nil

	default:
		return location{}, fmt.Errorf("unsupported export location scheme %q", scheme)
	}
}
