package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/tfgate/internal/config"
	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [environment]",
		Short: "Show recent runs per environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := ""
			if len(args) > 0 {
				env = args[0]
			}
			return runStatus(env, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "runs to show per environment")
	return cmd
}

func runStatus(envArg string, limit int) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer func() { _ = st.Stop(ctx) }()

	if envArg != "" {
		env, err := types.ParseEnvironment(envArg)
		if err != nil {
			return err
		}
		return showEnvironment(ctx, st, env, limit)
	}
	return showAllEnvironments(ctx, st, limit)
}

// showAllEnvironments queries each environment concurrently; a slow store
// partition should not serialize the overview.
func showAllEnvironments(ctx context.Context, st store.Store, limit int) error {
	envs := types.AllEnvironments()
	results := make([][]types.RunContext, len(envs))

	g, gctx := errgroup.WithContext(ctx)
	for i, env := range envs {
		g.Go(func() error {
			runs, err := st.ListRuns(gctx, env, limit)
			if err != nil {
				return fmt.Errorf("listing %s runs: %w", env, err)
			}
			results[i] = runs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	bold := color.New(color.Bold)
	for i, env := range envs {
		_, _ = bold.Printf("%s\n", env)
		if len(results[i]) == 0 {
			fmt.Println("  no runs")
			fmt.Println()
			continue
		}
		for _, r := range results[i] {
			printRunLine(r)
		}
		fmt.Println()
	}
	return nil
}

func showEnvironment(ctx context.Context, st store.Store, env types.Environment, limit int) error {
	runs, err := st.ListRuns(ctx, env, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("%s\n", env)
	if len(runs) == 0 {
		fmt.Println("  no runs")
	}
	for _, r := range runs {
		printRunLine(r)
	}

	events, err := st.ListEvents(ctx, env, 10)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	if len(events) > 0 {
		fmt.Println()
		_, _ = bold.Println("Recent events:")
		for _, e := range events {
			line := fmt.Sprintf("  %s  %-20s", e.Timestamp.Format(time.RFC3339), e.Kind)
			if e.RunID != "" {
				line += "  " + e.RunID
			}
			if e.Message != "" {
				line += "  " + e.Message
			}
			fmt.Println(line)
		}
	}
	return nil
}

func printRunLine(r types.RunContext) {
	detail := string(r.Action)
	if r.Status == types.RunBlocked && r.Decision != nil {
		detail += "  " + r.Decision.Reason
	}
	if r.Status == types.RunFailed && r.FailureMessage != "" {
		detail += "  " + r.FailureMessage
	}
	fmt.Printf("  %s  %-12s %s  %s\n",
		r.RunID, colorStatus(r.Status), r.UpdatedAt.Format(time.RFC3339), detail)
}
