package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackql/stackql-deploy/pkg/display"
	"github.com/stackql/stackql-deploy/pkg/server"
)

func newStopServerCmd() *cobra.Command {
	var runtimeName string

	cmd := &cobra.Command{
		Use:   "stop-server",
		Short: "Stop the stackql server",
		Long: `Stop a locally running stackql server.

The native runtime signals the process recorded in the pid file for the
configured port; the docker runtime stops and removes the labeled
container.

Examples:
  stackql-deploy stop-server
  stackql-deploy stop-server --runtime docker -p 5444`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			port := serverPort()

			fmt.Println(display.RenderBox("Stopping stackql server...", display.Red))
			fmt.Println(display.Colorize(fmt.Sprintf("Processing request to stop server on port %d", port), display.Yellow))

			logger, err := newLogger()
			if err != nil {
				return err
			}

			runtime, err := server.NewRuntime(runtimeName, logger)
			if err != nil {
				return err
			}

			if err := runtime.Stop(ctx, port); err != nil {
				fmt.Fprintln(os.Stderr, display.Colorize(fmt.Sprintf("Failed to stop server: %v", err), display.Red))
				os.Exit(1)
			}

			fmt.Println(display.Colorize("stackql server stopped successfully", display.Green))
			return nil
		},
	}

	cmd.Flags().StringVar(&runtimeName, "runtime", server.RuntimeNative, "Server runtime (native or docker)")

	return cmd
}
