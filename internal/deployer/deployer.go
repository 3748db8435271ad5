// Package deployer implements the mutation stage: applying a previously
// produced plan artifact, or destroying an environment outright.
package deployer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/tfgate/internal/artifact"
	"github.com/dwsmith1983/tfgate/internal/engine"
	"github.com/dwsmith1983/tfgate/internal/metrics"
	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Error reports a failed or partially applied mutation. The environment may
// have been left in an intermediate state; recovery is a new run, never a
// retry of this one.
type Error struct {
	Environment types.Environment
	Action      types.Action
	Message     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed for %s: %s", e.Action, e.Environment, e.Message)
}

// Deployer executes approved mutations. Each plan artifact is consumed
// at most once; a consumed artifact can never be applied again.
type Deployer struct {
	engine    engine.Engine
	artifacts artifact.Store
	store     store.Store
	logger    *slog.Logger
}

// New creates a Deployer.
func New(eng engine.Engine, artifacts artifact.Store, st store.Store) *Deployer {
	return &Deployer{
		engine:    eng,
		artifacts: artifacts,
		store:     st,
		logger:    slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (d *Deployer) SetLogger(l *slog.Logger) {
	if l != nil {
		d.logger = l
	}
}

// Execute performs the run's mutation. The run must carry a Proceed verdict;
// anything else is refused before the engine is touched. Destroy runs skip
// the artifact path since the engine derives the deletion set from recorded
// state. Apply runs consume their stored artifact first, which guarantees
// the plan is applied at most once even under concurrent executors.
func (d *Deployer) Execute(ctx context.Context, run *types.RunContext) (*types.DeployResult, error) {
	if run.Decision == nil || run.Decision.Verdict != types.VerdictProceed {
		return nil, &Error{
			Environment: run.Environment,
			Action:      run.Action,
			Message:     "run has no proceed verdict",
		}
	}

	metrics.DeploysTotal.Add(1)
	started := time.Now()

	if run.Action == types.ActionDestroy {
		out, err := d.engine.Destroy(ctx, run.Environment)
		if err != nil {
			metrics.DeployFailures.Add(1)
			return nil, &Error{Environment: run.Environment, Action: run.Action, Message: err.Error()}
		}
		d.logger.Info("destroy complete", "run", run.RunID, "environment", run.Environment)
		return &types.DeployResult{
			Action:      types.ActionDestroy,
			Outputs:     out.Outputs,
			Message:     "environment destroyed",
			StartedAt:   started,
			CompletedAt: time.Now(),
		}, nil
	}

	if run.Artifact == nil {
		metrics.DeployFailures.Add(1)
		return nil, &Error{Environment: run.Environment, Action: run.Action, Message: "no plan artifact recorded for run"}
	}
	if run.Artifact.Environment != run.Environment {
		metrics.DeployFailures.Add(1)
		return nil, &Error{
			Environment: run.Environment,
			Action:      run.Action,
			Message: fmt.Sprintf("plan artifact belongs to %s, refusing cross-environment apply",
				run.Artifact.Environment),
		}
	}

	ok, err := d.store.ConsumeArtifact(ctx, run.RunID)
	if err != nil {
		metrics.DeployFailures.Add(1)
		return nil, &Error{Environment: run.Environment, Action: run.Action,
			Message: fmt.Sprintf("consuming plan artifact: %v", err)}
	}
	if !ok {
		metrics.DeployFailures.Add(1)
		return nil, &Error{Environment: run.Environment, Action: run.Action,
			Message: "plan artifact already consumed"}
	}

	plan, err := d.artifacts.Get(ctx, run.Environment, run.RunID)
	if err != nil {
		metrics.DeployFailures.Add(1)
		return nil, &Error{Environment: run.Environment, Action: run.Action,
			Message: fmt.Sprintf("fetching plan artifact: %v", err)}
	}

	out, err := d.engine.Apply(ctx, run.Environment, plan)
	if err != nil {
		metrics.DeployFailures.Add(1)
		return nil, &Error{Environment: run.Environment, Action: run.Action, Message: err.Error()}
	}

	d.logger.Info("apply complete", "run", run.RunID, "environment", run.Environment,
		"outputs", len(out.Outputs))
	return &types.DeployResult{
		Action:      run.Action,
		Outputs:     out.Outputs,
		Message:     "plan applied",
		StartedAt:   started,
		CompletedAt: time.Now(),
	}, nil
}
