package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackql/stackql-deploy/pkg/engine"
)

func newBuildCmd() *cobra.Command {
	var (
		flags      stackFlags
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "build STACK_DIR STACK_ENV",
		Short: "Create or update resources",
		Long: `Deploy a stack to an environment, creating or updating resources
until live state matches the manifest.

Arguments:
  STACK_DIR  Path to the stack directory containing resources
  STACK_ENV  Environment to deploy to (e.g. prod, sit, dev)

Examples:
  stackql-deploy build ./my-stack dev
  stackql-deploy build ./my-stack prd -e AWS_REGION=us-east-1
  stackql-deploy build ./my-stack dev --dry-run
  stackql-deploy build ./my-stack prd --output-file s3://my-bucket/exports.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := newLogger()
			if err != nil {
				return err
			}

			eng, session, err := newStackEngine(ctx, args[0], args[1], &flags, logger)
			if err != nil {
				return err
			}
			defer session.Close(ctx)

			if _, err := eng.Build(ctx, engine.BuildOptions{OutputFile: outputFile}); err != nil {
				return err
			}

			if flags.dryRun {
				fmt.Println("dry-run build complete")
			} else {
				fmt.Println("build complete")
			}
			return nil
		},
	}

	addStackFlags(cmd, &flags)
	cmd.Flags().StringVar(&outputFile, "output-file", "", "File path or URL to write deployment outputs as JSON")

	return cmd
}
