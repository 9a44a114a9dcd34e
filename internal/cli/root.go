// Package cli implements the stackql-deploy CLI commands.
package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/server"

	// Import export store backends to register them via init()
	_ "github.com/stackql/stackql-deploy/pkg/exportstore/azurerm"
	_ "github.com/stackql/stackql-deploy/pkg/exportstore/gcs"
	_ "github.com/stackql/stackql-deploy/pkg/exportstore/local"
	_ "github.com/stackql/stackql-deploy/pkg/exportstore/s3"
)

// Version is the CLI version, overridden at build time with ldflags.
var Version = "dev"

var (
	cfgFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stackql-deploy",
	Short: "Model driven IaC using StackQL",
	Long: `stackql-deploy is a declarative provisioning tool built on StackQL.

Stacks are described as an ordered list of resources in a YAML manifest
with templated SQL query files. Deployments query live infrastructure
over the StackQL server to determine what to create, update, or delete;
there is no state file to manage or drift away from.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		port := viper.GetInt("server.port")
		if port < 1024 || port > 65535 {
			return errors.Newf(errors.ErrCodeConfig, "port must be between 1024 and 65535, got %d", port)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = Version

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stackql-deploy.yaml)")
	rootCmd.PersistentFlags().String("server", "localhost", "Server host to connect to")
	rootCmd.PersistentFlags().IntP("port", "p", 5444, "Server port to connect to")
	rootCmd.PersistentFlags().String("log-level", "INFO", "Set the logging level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	rootCmd.PersistentFlags().String("registry", "", "Custom provider registry URL")
	rootCmd.PersistentFlags().String("download-dir", server.DefaultInstallDir(), "Directory the stackql binary is installed to")

	// Bind to viper
	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("registry.url", rootCmd.PersistentFlags().Lookup("registry"))
	_ = viper.BindPFlag("download.dir", rootCmd.PersistentFlags().Lookup("download-dir"))
	viper.SetEnvPrefix("STACKQL_DEPLOY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newTeardownCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newUpgradeCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newStartServerCmd())
	rootCmd.AddCommand(newStopServerCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".stackql-deploy.yaml"))
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}
