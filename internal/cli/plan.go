package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackql/stackql-deploy/pkg/display"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [STACK_DIR] [STACK_ENV]",
		Short: "Plan infrastructure changes (coming soon)",
		Long: `Compare live infrastructure against the desired state defined in a
stack and show the statements a build would run.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(display.RenderBox("🔮 Infrastructure planning (coming soon)...", display.Cyan))
			fmt.Println("The 'plan' feature is coming soon!")
			return nil
		},
	}

	return cmd
}
