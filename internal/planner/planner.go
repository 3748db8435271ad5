// Package planner implements the plan stage: a read-only diff of desired
// versus actual infrastructure, classified by the engine's exit signal.
package planner

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

// Error reports a failed diff. It is fatal for the run; no mutation has
// been attempted. Message carries the engine's error output verbatim for
// operator visibility.
type Error struct {
	Environment types.Environment
	Message     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("plan failed for %s: %s", e.Environment, e.Message)
}

// Planner produces plan artifacts. It never mutates infrastructure.
type Planner struct {
	engine    engine.Engine
	artifacts artifact.Store
	store     store.Store
	logger    *slog.Logger
}

// New creates a Planner.
func New(eng engine.Engine, artifacts artifact.Store, st store.Store) *Planner {
	return &Planner{
		engine:    eng,
		artifacts: artifacts,
		store:     st,
		logger:    slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (p *Planner) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger = l
	}
}

// Plan runs the engine in diff mode and maps its three-way exit signal to a
// classification. On changes pending, the produced artifact is durably
// stored keyed by (environment, run-id) so a later stage, possibly on a
// different executor, can retrieve it.
func (p *Planner) Plan(ctx context.Context, run *types.RunContext) (*types.PlanArtifact, types.PlanClassification, error) {
	metrics.PlansTotal.Add(1)

	if err := p.engine.Init(ctx, run.Environment); err != nil {
		metrics.PlanFailures.Add(1)
		return nil, types.PlanFailed, &Error{Environment: run.Environment, Message: err.Error()}
	}

	out, err := p.engine.Plan(ctx, run.Environment, run.Action)
	if err != nil {
		metrics.PlanFailures.Add(1)
		return nil, types.PlanFailed, &Error{Environment: run.Environment, Message: err.Error()}
	}

	switch out.ExitCode {
	case engine.ExitNoChanges:
		p.logger.Info("plan complete", "run", run.RunID, "environment", run.Environment, "classification", types.PlanNoChange)
		return nil, types.PlanNoChange, nil

	case engine.ExitError:
		metrics.PlanFailures.Add(1)
		return nil, types.PlanFailed, &Error{Environment: run.Environment, Message: out.ErrorOutput}

	case engine.ExitChangesPending:
		key, err := p.artifacts.Put(ctx, run.Environment, run.RunID, out.Plan)
		if err != nil {
			metrics.PlanFailures.Add(1)
			return nil, types.PlanFailed, &Error{Environment: run.Environment, Message: fmt.Sprintf("storing plan artifact: %v", err)}
		}
		meta := types.PlanArtifact{
			RunID:       run.RunID,
			Environment: run.Environment,
			Commit:      run.Event.Commit,
			Key:         key,
			SizeBytes:   int64(len(out.Plan)),
			CreatedAt:   time.Now(),
		}
		if err := p.store.PutArtifactMeta(ctx, meta); err != nil {
			metrics.PlanFailures.Add(1)
			return nil, types.PlanFailed, &Error{Environment: run.Environment, Message: fmt.Sprintf("recording plan artifact: %v", err)}
		}
		p.logger.Info("plan complete", "run", run.RunID, "environment", run.Environment,
			"classification", types.PlanChangesPending, "artifact", key)
		return &meta, types.PlanChangesPending, nil

	default:
		metrics.PlanFailures.Add(1)
		return nil, types.PlanFailed, &Error{
			Environment: run.Environment,
			Message:     fmt.Sprintf("unexpected engine exit code %d", out.ExitCode),
		}
	}
}
