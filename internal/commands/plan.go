package commands

import (
	"context"
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tfgate/internal/config"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// NewPlanCmd creates the plan command.
func NewPlanCmd() *cobra.Command {
	var ref string

	cmd := &cobra.Command{
		Use:   "plan <environment>",
		Short: "Run a read-only plan against an environment",
		Long: `Plan computes the pending change set for an environment without applying
it. Exits 0 when the environment matches the configuration, 2 when changes
are pending, and 1 on error.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(args[0], types.ActionPlan, ref)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "source ref to record on the run")
	return cmd
}

// runAction dispatches a manual action for plan and apply.
func runAction(envArg string, action types.Action, ref string) error {
	env, err := types.ParseEnvironment(envArg)
	if err != nil {
		return err
	}

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	return dispatch(ctx, cfg, types.TriggerEvent{
		Type:        types.EventManualDispatch,
		Environment: env,
		Action:      action,
		Ref:         ref,
		Actor:       localActor(),
	})
}

func localActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
