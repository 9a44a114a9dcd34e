// Package engine reconciles a stack manifest against live
// infrastructure. Resources are processed in declaration order:
// properties render into a per-resource context, templated statements
// dispatch to a StackQL server, and exported values flow into the
// contexts of every later resource. Teardown walks the same list in
// reverse.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/stackql/stackql-deploy/pkg/display"
	"github.com/stackql/stackql-deploy/pkg/engine/executor"
	"github.com/stackql/stackql-deploy/pkg/envfile"
	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/schema/manifest"
	"github.com/stackql/stackql-deploy/pkg/stackql"
	"github.com/stackql/stackql-deploy/pkg/template"
)

// Engine drives build, test, and teardown runs for a single stack. An
// Engine is bound to one stack directory, one environment, and one
// server session; it is not safe for concurrent use.
type Engine struct {
	manifest manifest.Manifest
	exec     *executor.Executor
	renderer *template.Engine
	logger   *log.Logger
	output   io.Writer

	stackDir  string
	stackEnv  string
	stackName string

	envVars map[string]string

	dryRun      bool
	showQueries bool

	globalContext *template.Context
}

// Options configures a new Engine.
type Options struct {
	// StackDir is the directory holding stackql_manifest.yml and the
	// resource query files.
	StackDir string

	// StackEnv is the environment the stack is deployed to. Property
	// values keyed by environment resolve against this name.
	StackEnv string

	// Session is an open connection to a StackQL server.
	Session stackql.Session

	// EnvFile names a single dotenv file to load. When empty the chain
	// .env, .env.local, .env.<env>, .env.<env>.local is loaded from
	// StackDir instead.
	EnvFile string

	// EnvVars are KEY=VALUE overrides applied after the env files.
	EnvVars []string

	// Secrets are resolved secret values. They are applied last and
	// win over every other environment source.
	Secrets map[string]string

	// Imports are export document locations whose variables are
	// preloaded into the global context before globals render.
	Imports []string

	// DryRun renders and logs every statement without dispatching
	// anything to the server.
	DryRun bool

	// ShowQueries logs each rendered statement at info level.
	ShowQueries bool

	// Logger receives progress output. Defaults to the standard logger.
	Logger *log.Logger

	// Output receives banner boxes. Nil disables them.
	Output io.Writer
}

// New loads the stack manifest, builds the global variable context,
// and pulls any providers the manifest declares. Provider pulls are
// skipped during a dry run so that no statement reaches the server.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.StackDir == "" {
		return nil, errors.New(errors.ErrCodeConfig, "stack directory is required")
	}
	if opts.StackEnv == "" {
		return nil, errors.New(errors.ErrCodeConfig, "stack environment is required")
	}
	if opts.Session == nil {
		return nil, errors.New(errors.ErrCodeConfig, "a server session is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	m, err := manifest.NewLoader().LoadFromStackDir(opts.StackDir)
	if err != nil {
		return nil, err
	}

	envVars, err := loadEnvVars(opts)
	if err != nil {
		return nil, err
	}

	stackName := m.Name()
	if stackName == "" {
		stackName = filepath.Base(opts.StackDir)
	}

	e := &Engine{
		manifest:    m,
		exec:        executor.New(opts.Session, logger, opts.ShowQueries),
		renderer:    template.New(),
		logger:      logger,
		output:      opts.Output,
		stackDir:    opts.StackDir,
		stackEnv:    opts.StackEnv,
		stackName:   stackName,
		envVars:     envVars,
		dryRun:      opts.DryRun,
		showQueries: opts.ShowQueries,
	}

	if err := e.buildGlobalContext(ctx, opts.Imports); err != nil {
		return nil, err
	}

	if !e.dryRun {
		if err := e.pullProviders(ctx); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// StackName returns the stack name, falling back to the stack
// directory name when the manifest does not declare one.
func (e *Engine) StackName() string { return e.stackName }

// StackEnv returns the environment this engine deploys to.
func (e *Engine) StackEnv() string { return e.stackEnv }

// Manifest returns the loaded stack manifest.
func (e *Engine) Manifest() manifest.Manifest { return e.manifest }

// loadEnvVars merges the dotenv sources with the command line
// overrides. Later sources win: file chain, then KEY=VALUE overrides,
// then resolved secrets.
func loadEnvVars(opts Options) (map[string]string, error) {
	var vars map[string]string
	var err error

	if opts.EnvFile != "" {
		vars, err = envfile.LoadFile(opts.EnvFile)
		if err != nil {
			if os.IsNotExist(err) {
				vars = make(map[string]string)
			} else {
				return nil, errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("failed to load env file %s", opts.EnvFile), err)
			}
		}
	} else {
		vars, err = envfile.Load(opts.StackDir, opts.StackEnv)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig, "failed to load env files", err)
		}
	}

	for _, kv := range opts.EnvVars {
		key, value, found := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, errors.Newf(errors.ErrCodeConfig, "invalid environment override %q, expected KEY=VALUE", kv)
		}
		vars[key] = value
	}

	for key, value := range opts.Secrets {
		vars[key] = value
	}

	return vars, nil
}

// banner writes a bordered box to the output writer.
func (e *Engine) banner(text string, color display.Color) {
	if e.output == nil {
		return
	}
	fmt.Fprintln(e.output, display.RenderBox(text, color))
}

// dryRunSuffix tags log lines during a dry run.
func (e *Engine) dryRunSuffix() string {
	if e.dryRun {
		return "(dry run)"
	}
	return ""
}

// exportedValues returns the variables exported so far, unmasked.
func (e *Engine) exportedValues() map[string]string {
	out := make(map[string]string)
	for _, name := range e.globalContext.Names() {
		v, _ := e.globalContext.Get(name)
		if v.Source == template.SourceExport {
			out[name] = v.Raw
		}
	}
	return out
}

// runUUID seeds the per-run uuid variable available to every template.
func runUUID() string {
	return uuid.NewString()
}

// formatElapsed renders a run duration for log output.
func formatElapsed(d time.Duration) string {
	return d.Round(10 * time.Millisecond).String()
}

// secs converts a fragment retry delay to a duration.
func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
