package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackql/stackql-deploy/pkg/engine"
)

func newTestCmd() *cobra.Command {
	var (
		flags      stackFlags
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "test STACK_DIR STACK_ENV",
		Short: "Test resources",
		Long: `Validate that the resources in a stack are in their desired state
without creating, updating, or deleting anything.

Arguments:
  STACK_DIR  Path to the stack directory containing resources
  STACK_ENV  Environment to test (e.g. prod, sit, dev)

Examples:
  stackql-deploy test ./my-stack dev
  stackql-deploy test ./my-stack prd --show-queries`,
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

			if _, err := eng.Test(ctx, engine.TestOptions{OutputFile: outputFile}); err != nil {
				return err
			}

			fmt.Printf("tests complete (dry run: %t)\n", flags.dryRun)
			return nil
		},
	}

	addStackFlags(cmd, &flags)
	cmd.Flags().StringVar(&outputFile, "output-file", "", "File path or URL to write test outputs as JSON")

	return cmd
}
