package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tfgate/internal/config"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// NewApproveCmd creates the approve command.
func NewApproveCmd() *cobra.Command {
	var reviewer string
	var comment string

	cmd := &cobra.Command{
		Use:   "approve <run-id>",
		Short: "Record an approval for a blocked run",
		Long: `Approve records a reviewer sign-off for a run. If the run is parked as
BLOCKED, the gate is re-evaluated immediately; when enough distinct reviewers
have signed off the run continues through deploy.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprove(args[0], reviewer, comment)
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer name (defaults to the local user)")
	cmd.Flags().StringVar(&comment, "comment", "", "optional review comment")
	return cmd
}

func runApprove(runID, reviewer, comment string) error {
	if reviewer == "" {
		reviewer = localActor()
	}

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	orch, st, cleanup, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := orch.RecordApproval(ctx, types.Approval{
		RunID:      runID,
		Reviewer:   reviewer,
		Comment:    comment,
		RecordedAt: time.Now(),
	}); err != nil {
		return err
	}
	color.Green("Approval recorded for run %s (reviewer: %s)", runID, reviewer)

	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	if run.Status != types.RunBlocked {
		printRun(run)
		return nil
	}

	resumed, resumeErr := orch.Resume(ctx, runID)
	if resumed == nil {
		return fmt.Errorf("resuming run: %w", resumeErr)
	}
	printRun(resumed)
	return exitStatus(resumed)
}
