package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tfgate/internal/config"
	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs or inspect a single run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return showRun(args[0])
			}
			return listRuns(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "runs to list")
	return cmd
}

func withStore(timeout time.Duration, fn func(ctx context.Context, st store.Store) error) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer func() { _ = st.Stop(ctx) }()

	return fn(ctx, st)
}

func listRuns(limit int) error {
	return withStore(15*time.Second, func(ctx context.Context, st store.Store) error {
		runs, err := st.ListRuns(ctx, "", limit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, r := range runs {
			env := string(r.Environment)
			if env == "" {
				env = "-"
			}
			fmt.Printf("%s  %-8s %-12s %s\n", r.RunID, env, colorStatus(r.Status), r.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	})
}

func showRun(runID string) error {
	return withStore(15*time.Second, func(ctx context.Context, st store.Store) error {
		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("loading run: %w", err)
		}
		printRun(run)

		approvals, err := st.ListApprovals(ctx, runID)
		if err != nil {
			return fmt.Errorf("listing approvals: %w", err)
		}
		bold := color.New(color.Bold)
		if len(approvals) > 0 {
			_, _ = bold.Println("  Approvals:")
			for _, a := range approvals {
				line := fmt.Sprintf("    %s  %s", a.RecordedAt.Format(time.RFC3339), a.Reviewer)
				if a.Comment != "" {
					line += "  " + a.Comment
				}
				fmt.Println(line)
			}
		}

		events, err := st.ListEvents(ctx, run.Environment, 100)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if own := runEventsFor(events, runID); len(own) > 0 {
			_, _ = bold.Println("  Events:")
			for _, e := range own {
				line := fmt.Sprintf("    %s  %-20s", e.Timestamp.Format(time.RFC3339), e.Kind)
				if e.Message != "" {
					line += "  " + e.Message
				}
				fmt.Println(line)
			}
		}
		return nil
	})
}

// runEventsFor filters an environment's audit trail down to one run.
func runEventsFor(events []types.Event, runID string) []types.Event {
	var out []types.Event
	for _, e := range events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}
