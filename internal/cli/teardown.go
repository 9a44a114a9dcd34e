package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTeardownCmd() *cobra.Command {
	var flags stackFlags

	cmd := &cobra.Command{
		Use:   "teardown STACK_DIR STACK_ENV",
		Short: "Teardown a provisioned stack",
		Long: `Destroy the resources in a stack in reverse declaration order.
Exports are collected first so delete statements can reference values
provided by other resources.

Arguments:
  STACK_DIR  Path to the stack directory containing resources
  STACK_ENV  Environment to teardown (e.g. prod, sit, dev)

Examples:
  stackql-deploy teardown ./my-stack dev
  stackql-deploy teardown ./my-stack prd --dry-run`,
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

			if _, err := eng.Teardown(ctx); err != nil {
				return err
			}

			fmt.Printf("teardown complete (dry run: %t)\n", flags.dryRun)
			return nil
		},
	}

	addStackFlags(cmd, &flags)

	return cmd
}
