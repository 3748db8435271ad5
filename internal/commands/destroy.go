package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// NewDestroyCmd creates the destroy command.
func NewDestroyCmd() *cobra.Command {
	var ref string
	var confirm bool

	cmd := &cobra.Command{
		Use:   "destroy <environment>",
		Short: "Tear down an environment's infrastructure",
		Long: `Destroy removes every managed resource in the environment. It requires
--confirm and, in environments with a reviewer pool, sign-off from the full
pool before the gate lets it through.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("destroy is irreversible; re-run with --confirm")
			}
			return runAction(args[0], types.ActionDestroy, ref)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "source ref checked against the environment's branch policy")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "acknowledge that destroy tears down infrastructure")
	return cmd
}
