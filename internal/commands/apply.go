package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tfgate/internal/config"
	"github.com/dwsmith1983/tfgate/internal/orchestrator"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// NewApplyCmd creates the apply command.
func NewApplyCmd() *cobra.Command {
	var ref string
	var runID string

	cmd := &cobra.Command{
		Use:   "apply <environment>",
		Short: "Plan and apply pending changes to an environment",
		Long: `Apply plans the environment and, if the gate clears, applies the stored
plan artifact. Runs that need approvals park as BLOCKED and exit 2; resume
them with "tfgate approve" or "tfgate apply --run <run-id>" once the
reviewers have signed off. Each plan artifact belongs to exactly one run and
is applied at most once.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID != "" {
				if len(args) > 0 {
					return fmt.Errorf("--run resumes an existing run; drop the environment argument")
				}
				return resumeRun(runID)
			}
			if len(args) == 0 {
				return fmt.Errorf("environment argument or --run is required")
			}
			return runAction(args[0], types.ActionApply, ref)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "source ref checked against the environment's branch policy")
	cmd.Flags().StringVar(&runID, "run", "", "resume a blocked run and apply its stored plan artifact")
	return cmd
}

// resumeRun re-evaluates the gate for a blocked run and carries it through
// deploy if the gate now clears.
func resumeRun(runID string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	orch, _, cleanup, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	run, resumeErr := orch.Resume(ctx, runID)
	if run == nil {
		return fmt.Errorf("resuming run: %w", resumeErr)
	}
	var nre *orchestrator.NotResumableError
	if errors.As(resumeErr, &nre) {
		return nre
	}
	printRun(run)
	return exitStatus(run)
}
