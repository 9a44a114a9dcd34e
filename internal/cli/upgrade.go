package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackql/stackql-deploy/pkg/display"
	"github.com/stackql/stackql-deploy/pkg/server"
)

func newUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade stackql to the latest version",
		Long: `Download the latest stackql binary into the download directory,
replacing any installed version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			fmt.Println(display.RenderBox("📦 Upgrading stackql...", display.Cyan))

			logger, err := newLogger()
			if err != nil {
				return err
			}

			path, err := server.Download(ctx, logger, downloadDir())
			if err != nil {
				fmt.Fprintln(os.Stderr, display.Colorize(fmt.Sprintf("Error upgrading stackql binary: %v", err), display.Red))
				os.Exit(1)
			}

			if info, err := server.BinaryVersion(ctx, path); err == nil {
				fmt.Printf("Successfully upgraded stackql binary to the latest version (%s) at:\n", info.Version)
			} else {
				fmt.Println("Successfully upgraded stackql binary to the latest version at:")
			}
			fmt.Println(display.Colorize(path, display.Green))
			fmt.Println("Upgrade complete!")
			return nil
		},
	}

	return cmd
}
