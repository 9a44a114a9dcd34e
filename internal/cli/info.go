package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackql/stackql-deploy/pkg/server"
	"github.com/stackql/stackql-deploy/pkg/stackql"
)

// defaultRegistryURL is where provider definitions come from when no
// custom registry is configured.
const defaultRegistryURL = "https://registry.stackql.app/providers"

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Display version and environment information",
		Long: `Show the stackql-deploy version, the installed stackql binary, the
provider registry in use, and the state of the configured server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			fmt.Printf("stackql-deploy version: %s\n", Version)
			fmt.Printf("platform: %s\n", server.Platform())
			fmt.Println()

			fmt.Println("stackql binary:")
			if path, found := server.Locate(downloadDir()); found {
				fmt.Printf("  path:    %s\n", path)
				if info, err := server.BinaryVersion(ctx, path); err == nil {
					fmt.Printf("  version: %s (%s)\n", info.Version, info.SHA)
				}
			} else {
				fmt.Println("  not installed (run 'stackql-deploy upgrade' to install)")
			}
			fmt.Println()

			if registry := viper.GetString("registry.url"); registry != "" {
				fmt.Printf("registry: %s\n", registry)
			} else {
				fmt.Printf("registry: %s (default)\n", defaultRegistryURL)
			}
			fmt.Println()

			host, port := serverHost(), serverPort()
			fmt.Println("server:")
			fmt.Printf("  address: %s:%d\n", host, port)
			if !server.IsRunning(host, port) {
				fmt.Println("  status:  not running")
				return nil
			}
			fmt.Println("  status:  running")

			session, err := stackql.Connect(ctx, stackql.Config{Host: host, Port: port})
			if err != nil {
				fmt.Printf("  (failed to query providers: %v)\n", err)
				return nil
			}
			defer session.Close(ctx)

			res, err := session.Execute(ctx, "SHOW PROVIDERS")
			if err != nil || res.Kind != stackql.KindData || len(res.Rows) == 0 {
				fmt.Println("  installed providers: none")
				return nil
			}
			fmt.Println("  installed providers:")
			for _, row := range res.Rows {
				fmt.Printf("    %-24s %s\n", row["name"], row["version"])
			}
			return nil
		},
	}

	return cmd
}
