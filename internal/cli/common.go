package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackql/stackql-deploy/pkg/engine"
	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/secrets"
	"github.com/stackql/stackql-deploy/pkg/server"
	"github.com/stackql/stackql-deploy/pkg/stackql"
)

// FailureAction names what a deployment does when a resource fails.
type FailureAction string

const (
	FailureRollback FailureAction = "rollback"
	FailureIgnore   FailureAction = "ignore"
	FailureError    FailureAction = "error"
)

// parseFailureAction validates an --on-failure value. Rollback parses
// but is rejected at run time because no rollback is implemented.
func parseFailureAction(s string) (FailureAction, error) {
	switch strings.ToLower(s) {
	case "rollback":
		return FailureRollback, nil
	case "ignore":
		return FailureIgnore, nil
	case "error":
		return FailureError, nil
	default:
		return "", errors.Newf(errors.ErrCodeConfig, "unknown failure action %q, expected 'rollback', 'ignore' or 'error'", s)
	}
}

// parseLogLevel maps the CLI level names onto logger levels.
func parseLogLevel(s string) (log.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return log.DebugLevel, nil
	case "INFO":
		return log.InfoLevel, nil
	case "WARNING", "WARN":
		return log.WarnLevel, nil
	case "ERROR":
		return log.ErrorLevel, nil
	case "CRITICAL":
		return log.FatalLevel, nil
	default:
		return 0, errors.Newf(errors.ErrCodeConfig, "invalid log level %q, expected DEBUG, INFO, WARNING, ERROR or CRITICAL", s)
	}
}

// newLogger builds the stderr logger used for run diagnostics.
func newLogger() (*log.Logger, error) {
	level, err := parseLogLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
	}), nil
}

// serverHost returns the configured server host.
func serverHost() string {
	host := viper.GetString("server.host")
	if host == "" {
		host = stackql.DefaultHost
	}
	return host
}

// serverPort returns the configured server port.
func serverPort() int {
	port := viper.GetInt("server.port")
	if port == 0 {
		port = stackql.DefaultPort
	}
	return port
}

// downloadDir returns the configured binary install directory.
func downloadDir() string {
	dir := viper.GetString("download.dir")
	if dir == "" {
		dir = server.DefaultInstallDir()
	}
	return dir
}

// ensureBinary locates the stackql binary, downloading it first when it
// is not installed yet.
func ensureBinary(ctx context.Context, logger *log.Logger) (string, error) {
	if path, found := server.Locate(downloadDir()); found {
		return path, nil
	}
	fmt.Println("StackQL binary not found. Downloading the latest version...")
	return server.Download(ctx, logger, downloadDir())
}

// ensureServer starts a local server when nothing answers on the
// configured port. Remote hosts are left alone; connecting will fail
// with a connection error if nothing is listening there.
func ensureServer(ctx context.Context, logger *log.Logger) error {
	host, port := serverHost(), serverPort()
	if server.IsRunning(host, port) {
		return nil
	}
	if !server.IsLocalAddress(host) {
		return nil
	}

	logger.Infof("stackql server not running on port %d, starting it...", port)
	binaryPath, err := ensureBinary(ctx, logger)
	if err != nil {
		return err
	}

	runtime, err := server.NewRuntime(server.RuntimeNative, logger)
	if err != nil {
		return err
	}
	return runtime.Start(ctx, server.StartOptions{
		Host:       host,
		Port:       port,
		Registry:   viper.GetString("registry.url"),
		BinaryPath: binaryPath,
	})
}

// connect opens a session to the configured server.
func connect(ctx context.Context) (*stackql.Client, error) {
	host, port := serverHost(), serverPort()
	client, err := stackql.Connect(ctx, stackql.Config{Host: host, Port: port})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConnection, "failed to connect to server", err)
	}
	fmt.Printf("Connected to stackql server at %s:%d\n", host, port)
	return client, nil
}

// stackFlags holds the flag values shared by build, test, and teardown.
type stackFlags struct {
	envFile     string
	envVars     []string
	secretRefs  []string
	secretsFile string
	imports     []string
	dryRun      bool
	showQueries bool
	onFailure   string
}

// addStackFlags registers the shared stack operation flags.
func addStackFlags(cmd *cobra.Command, flags *stackFlags) {
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Environment variables file (default: .env files in the stack directory)")
	cmd.Flags().StringArrayVarP(&flags.envVars, "env", "e", nil, "Set additional environment variables (format: KEY=VALUE)")
	cmd.Flags().StringArrayVar(&flags.secretRefs, "secret", nil, "Resolve a secret into the context (format: KEY=provider:ref)")
	cmd.Flags().StringVar(&flags.secretsFile, "secrets-file", "", "JSON document backing the 'file' secret provider")
	cmd.Flags().StringArrayVar(&flags.imports, "import", nil, "Import exports from a previously written export document URL")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Perform a dry run of the operation")
	cmd.Flags().BoolVar(&flags.showQueries, "show-queries", false, "Show queries run in the output logs")
	cmd.Flags().StringVar(&flags.onFailure, "on-failure", "error", "Action to take on failure (rollback, ignore, error)")
}

// resolveSecretFlags resolves --secret KEY=provider:ref flags into
// environment overrides. Later flags win on duplicate keys. Providers
// are registered on demand so a run without awssm references never
// touches the AWS credential chain.
func resolveSecretFlags(ctx context.Context, refs []string, secretsFile string) (map[string]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	mgr := secrets.DefaultManager()
	if secretsFile != "" {
		fp, err := secrets.LoadFileProvider(secretsFile)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig, "failed to load secrets file", err)
		}
		mgr.RegisterProvider(fp)
	}
	for _, ref := range refs {
		if _, target, found := strings.Cut(ref, "="); found && strings.HasPrefix(target, "awssm:") {
			sm, err := secrets.NewAWSSecretsManagerProvider(ctx)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeConfig, "failed to initialize aws secrets manager provider", err)
			}
			mgr.RegisterProvider(sm)
			break
		}
	}

	resolved := make(map[string]string, len(refs))
	for _, ref := range refs {
		key, target, found := strings.Cut(ref, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, errors.Newf(errors.ErrCodeConfig, "invalid secret reference %q, expected KEY=provider:ref", ref)
		}
		value, err := mgr.Resolve(ctx, target)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("failed to resolve secret for %s", key), err)
		}
		resolved[key] = value
	}
	return resolved, nil
}

// newStackEngine connects to the server and assembles an engine for one
// stack run. The caller owns the returned session and must close it.
func newStackEngine(ctx context.Context, stackDir, stackEnv string, flags *stackFlags, logger *log.Logger) (*engine.Engine, *stackql.Client, error) {
	if _, err := parseFailureAction(flags.onFailure); err != nil {
		return nil, nil, err
	}
	if FailureAction(strings.ToLower(flags.onFailure)) == FailureRollback {
		return nil, nil, errors.New(errors.ErrCodeConfig, "on-failure action 'rollback' is not implemented")
	}

	secretVars, err := resolveSecretFlags(ctx, flags.secretRefs, flags.secretsFile)
	if err != nil {
		return nil, nil, err
	}

	if err := ensureServer(ctx, logger); err != nil {
		return nil, nil, err
	}
	session, err := connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(ctx, engine.Options{
		StackDir:    stackDir,
		StackEnv:    stackEnv,
		Session:     session,
		EnvFile:     flags.envFile,
		EnvVars:     flags.envVars,
		Secrets:     secretVars,
		Imports:     flags.imports,
		DryRun:      flags.dryRun,
		ShowQueries: flags.showQueries,
		Logger:      logger,
		Output:      os.Stdout,
	})
	if err != nil {
		_ = session.Close(ctx)
		return nil, nil, err
	}
	return eng, session, nil
}
