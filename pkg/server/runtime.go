package server

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stackql/stackql-deploy/pkg/errors"
)

// Runtime names accepted by NewRuntime.
const (
	RuntimeNative = "native"
	RuntimeDocker = "docker"
)

// readyTimeout bounds how long Start waits for the server port to
// answer.
const readyTimeout = 30 * time.Second

// StartOptions configure a local server start.
type StartOptions struct {
	Host string
	Port int

	// Registry is a custom provider registry, either a bare URL or a
	// full registry config JSON object.
	Registry string

	// MTLSConfig and CustomAuthConfig are JSON objects passed through
	// to the server untouched.
	MTLSConfig       string
	CustomAuthConfig string

	// LogLevel sets the server's own log level.
	LogLevel string

	// BinaryPath locates the stackql executable for the native runtime.
	BinaryPath string

	// Image overrides the container image for the docker runtime.
	Image string
}

// Runtime manages a local stackql server instance.
type Runtime interface {
	Start(ctx context.Context, opts StartOptions) error
	Stop(ctx context.Context, port int) error
}

// NewRuntime returns the runtime implementation for name. An empty
// name selects the native runtime.
func NewRuntime(name string, logger *log.Logger) (Runtime, error) {
	switch name {
	case "", RuntimeNative:
		return &nativeRuntime{logger: logger, stateDir: StateDir()}, nil
	case RuntimeDocker:
		return &dockerRuntime{logger: logger}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeConfig,
			"unknown server runtime %q, expected 'native' or 'docker'", name)
	}
}

// IsLocalAddress reports whether host names the local machine for
// server lifecycle purposes.
func IsLocalAddress(host string) bool {
	return host == "localhost" || host == "0.0.0.0" || host == "127.0.0.1"
}

// IsRunning reports whether something answers on the server port.
func IsRunning(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// waitReady polls the server port until it answers or the timeout
// passes.
func waitReady(ctx context.Context, host string, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsRunning(host, port) {
			return nil
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Newf(errors.ErrCodeServer,
		"server did not become ready on %s:%d within %s", host, port, timeout)
}

// serverArgs builds the stackql srv argument list shared by both
// runtimes.
func serverArgs(address string, opts StartOptions) []string {
	args := []string{"srv", "--pgsrv.address", address, "--pgsrv.port", strconv.Itoa(opts.Port)}
	if opts.Registry != "" {
		args = append(args, "--registry", registryConfig(opts.Registry))
	}
	if opts.MTLSConfig != "" {
		args = append(args, "--pgsrv.tls", opts.MTLSConfig)
	}
	if opts.CustomAuthConfig != "" {
		args = append(args, "--auth", opts.CustomAuthConfig)
	}
	if opts.LogLevel != "" {
		args = append(args, "--loglevel", strings.ToLower(opts.LogLevel))
	}
	return args
}

// registryConfig wraps a bare registry URL in the config object the
// server expects. Values that already look like JSON pass through.
func registryConfig(registry string) string {
	if strings.HasPrefix(strings.TrimSpace(registry), "{") {
		return registry
	}
	data, _ := json.Marshal(map[string]string{"url": registry})
	return string(data)
}
