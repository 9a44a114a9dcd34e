package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackql/stackql-deploy/pkg/display"
	"github.com/stackql/stackql-deploy/pkg/server"
)

func newStartServerCmd() *cobra.Command {
	var (
		mtlsConfig       string
		customAuthConfig string
		serverLogLevel   string
		runtimeName      string
		image            string
	)

	cmd := &cobra.Command{
		Use:   "start-server",
		Short: "Start the stackql server",
		Long: `Start a local stackql server on the configured host and port.

The native runtime spawns the stackql binary, downloading it first if it
is not installed. The docker runtime runs the stackql/stackql image with
the server port published.

Examples:
  stackql-deploy start-server
  stackql-deploy start-server --registry "http://localhost:8000" --server-log-level INFO
  stackql-deploy start-server --runtime docker -p 5444`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			fmt.Println(display.RenderBox("🚀 Starting stackql server...", display.Cyan))

			host, port := serverHost(), serverPort()
			if !server.IsLocalAddress(host) {
				fmt.Fprintln(os.Stderr, display.Colorize("Error: Host must be 'localhost' or '0.0.0.0' for local server setup.", display.Red))
				fmt.Fprintln(os.Stderr, "The start-server command is only for starting a local server instance.")
				os.Exit(1)
			}

			if server.IsRunning(host, port) {
				fmt.Println(display.Colorize(fmt.Sprintf("Server is already running on port %d. No action needed.", port), display.Yellow))
				return nil
			}

			logger, err := newLogger()
			if err != nil {
				return err
			}

			opts := server.StartOptions{
				Host:             host,
				Port:             port,
				Registry:         viper.GetString("registry.url"),
				MTLSConfig:       mtlsConfig,
				CustomAuthConfig: customAuthConfig,
				LogLevel:         serverLogLevel,
				Image:            image,
			}

			if runtimeName == "" || runtimeName == server.RuntimeNative {
				binaryPath, err := ensureBinary(ctx, logger)
				if err != nil {
					return err
				}
				opts.BinaryPath = binaryPath
			}

			runtime, err := server.NewRuntime(runtimeName, logger)
			if err != nil {
				return err
			}

			if err := runtime.Start(ctx, opts); err != nil {
				fmt.Fprintln(os.Stderr, display.Colorize(fmt.Sprintf("Failed to start server: %v", err), display.Red))
				os.Exit(1)
			}

			fmt.Println(display.Colorize(fmt.Sprintf("Server is listening on %s:%d", host, port), display.Green))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mtlsConfig, "mtls-config", "m", "", "[OPTIONAL] mTLS configuration for the server (JSON object)")
	cmd.Flags().StringVarP(&customAuthConfig, "custom-auth-config", "a", "", "[OPTIONAL] Custom provider authentication configuration for the server (JSON object)")
	cmd.Flags().StringVarP(&serverLogLevel, "server-log-level", "l", "", "[OPTIONAL] Server log level (default: WARN)")
	cmd.Flags().StringVar(&runtimeName, "runtime", server.RuntimeNative, "Server runtime (native or docker)")
	cmd.Flags().StringVar(&image, "image", "", "Container image for the docker runtime")

	return cmd
}
