// Package orchestrator drives a deployment run through its lifecycle:
// classify, validate, lock, plan, gate, deploy. Every status change is
// persisted before the next stage starts, so a crashed or blocked run can
// be inspected and, for blocked runs, resumed by a later approval.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/tfgate/internal/classify"
	"github.com/dwsmith1983/tfgate/internal/deployer"
	"github.com/dwsmith1983/tfgate/internal/gate"
	"github.com/dwsmith1983/tfgate/internal/lifecycle"
	"github.com/dwsmith1983/tfgate/internal/metrics"
	"github.com/dwsmith1983/tfgate/internal/planner"
	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// AlertFunc dispatches an operator alert. Dispatch failures are the
// dispatcher's problem; the orchestrator fires and forgets.
type AlertFunc func(ctx context.Context, alert types.Alert)

// ValidateFunc checks a classified run before any stage touches the
// environment. Returning an error fails the run at the validate stage.
type ValidateFunc func(run *types.RunContext) error

// Orchestrator owns the run lifecycle. It is safe for concurrent use;
// cross-process serialization per environment is delegated to the store's
// lock primitives.
type Orchestrator struct {
	store    store.Store
	planner  *planner.Planner
	deployer *deployer.Deployer
	gate     *gate.Gate

	lock     LockPolicy
	validate ValidateFunc
	alert    AlertFunc
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newRunID func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLockPolicy overrides the default environment lock policy.
func WithLockPolicy(policy LockPolicy) Option {
	return func(o *Orchestrator) { o.lock = policy }
}

// WithValidator installs a run validator executed before the lock stage.
func WithValidator(fn ValidateFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.validate = fn
		}
	}
}

// WithAlertFunc installs an alert dispatcher for run failures and blocks.
func WithAlertFunc(fn AlertFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.alert = fn
		}
	}
}

// WithClock sets a custom time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep replaces the backoff sleeper (useful for testing lock retry).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithRunIDFunc replaces the run ID generator.
func WithRunIDFunc(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// New creates an Orchestrator.
func New(st store.Store, p *planner.Planner, d *deployer.Deployer, g *gate.Gate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		planner:  p,
		deployer: d,
		gate:     g,
		lock:     DefaultLockPolicy(),
		validate: defaultValidate,
		alert:    func(context.Context, types.Alert) {},
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepContext,
		newRunID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetLogger overrides the default logger.
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l != nil {
		o.logger = l
	}
}

// Run drives a trigger event through the full lifecycle and returns the
// final run record. A nil error with a non-terminal status means the run is
// parked (blocked awaiting approval). The returned run is always non-nil
// once it has been persisted, even when an error is also returned.
func (o *Orchestrator) Run(ctx context.Context, event types.TriggerEvent) (*types.RunContext, error) {
	metrics.RunsTotal.Add(1)
	now := o.now()
	run := &types.RunContext{
		RunID:     o.newRunID(),
		Event:     event,
		Status:    types.RunClassifying,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.PutRun(ctx, *run); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	o.audit(ctx, run, types.EventRunStarted, "", nil)
	o.logger.Info("run started", "run", run.RunID, "event", event.Type, "actor", event.Actor)

	cls, err := classify.Classify(event)
	if err != nil {
		return run, o.fail(ctx, run, types.StageClassify, err)
	}
	if cls.Skip {
		metrics.RunsSkipped.Add(1)
		if err := o.transition(ctx, run, types.RunDone); err != nil {
			return run, err
		}
		o.audit(ctx, run, types.EventRunSkipped, cls.SkipReason, nil)
		o.logger.Info("run skipped", "run", run.RunID, "reason", cls.SkipReason)
		return run, nil
	}

	run.Environment = cls.Environment
	run.Action = cls.Action
	run.ShouldDeploy = cls.ShouldDeploy
	run.Branch = cls.Branch
	o.audit(ctx, run, types.EventRunClassified, "", map[string]interface{}{
		"environment": cls.Environment,
		"action":      cls.Action,
	})

	if err := o.transition(ctx, run, types.RunValidating); err != nil {
		return run, err
	}
	if err := o.validate(run); err != nil {
		return run, o.fail(ctx, run, types.StageValidate, err)
	}
	o.audit(ctx, run, types.EventRunValidated, "", nil)

	if err := o.acquireLock(ctx, run); err != nil {
		return run, o.fail(ctx, run, types.StageLock, err)
	}
	if err := o.transition(ctx, run, types.RunPlanning); err != nil {
		o.releaseLock(ctx, run)
		return run, err
	}

	meta, planCls, err := o.planner.Plan(ctx, run)
	if err != nil {
		o.audit(ctx, run, types.EventPlanFailed, err.Error(), nil)
		o.releaseLock(ctx, run)
		return run, o.fail(ctx, run, types.StagePlan, err)
	}
	run.Classification = planCls
	run.Artifact = meta
	o.audit(ctx, run, types.EventPlanCompleted, "", map[string]interface{}{"classification": planCls})

	if err := o.transition(ctx, run, types.RunGating); err != nil {
		o.releaseLock(ctx, run)
		return run, err
	}
	return o.evaluateGate(ctx, run)
}

// Resume re-evaluates a blocked run, typically after a new approval has
// been recorded. The environment lock is re-acquired first; the original
// lock was released when the run blocked.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*types.RunContext, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	if run.Status != types.RunBlocked {
		return run, &NotResumableError{RunID: runID, Status: run.Status}
	}

	metrics.RunsResumed.Add(1)
	o.audit(ctx, run, types.EventRunResumed, "", nil)
	o.logger.Info("run resumed", "run", run.RunID, "environment", run.Environment)

	if err := o.acquireLock(ctx, run); err != nil {
		return run, o.fail(ctx, run, types.StageLock, err)
	}
	if err := o.transition(ctx, run, types.RunGating); err != nil {
		o.releaseLock(ctx, run)
		return run, err
	}
	return o.evaluateGate(ctx, run)
}

// RecordApproval persists a reviewer sign-off for a run. It does not resume
// the run; callers decide whether to attempt a Resume afterwards.
func (o *Orchestrator) RecordApproval(ctx context.Context, approval types.Approval) error {
	run, err := o.store.GetRun(ctx, approval.RunID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", approval.RunID, err)
	}
	if lifecycle.IsTerminal(run.Status) {
		return fmt.Errorf("run %s is already %s", run.RunID, run.Status)
	}
	if approval.RecordedAt.IsZero() {
		approval.RecordedAt = o.now()
	}
	if err := o.store.RecordApproval(ctx, approval); err != nil {
		return fmt.Errorf("recording approval: %w", err)
	}
	metrics.ApprovalsRecorded.Add(1)
	o.audit(ctx, run, types.EventApprovalRecorded, approval.Comment, map[string]interface{}{
		"reviewer": approval.Reviewer,
	})
	o.logger.Info("approval recorded", "run", run.RunID, "reviewer", approval.Reviewer)
	return nil
}

// evaluateGate runs the gate on a run that holds its environment lock and
// carries the outcome through to a terminal or parked state. The lock is
// always released before returning.
func (o *Orchestrator) evaluateGate(ctx context.Context, run *types.RunContext) (*types.RunContext, error) {
	decision, err := o.gate.Decide(ctx, run)
	if err != nil {
		o.releaseLock(ctx, run)
		return run, o.fail(ctx, run, types.StageGate, err)
	}
	run.Decision = &decision
	o.audit(ctx, run, types.EventGateDecision, decision.Reason, map[string]interface{}{
		"verdict": decision.Verdict,
	})

	switch decision.Verdict {
	case types.VerdictBlocked:
		metrics.GateBlocks.Add(1)
		if err := o.transition(ctx, run, types.RunBlocked); err != nil {
			o.releaseLock(ctx, run)
			return run, err
		}
		// A parked run must not hold its environment hostage.
		o.releaseLock(ctx, run)
		o.alert(ctx, types.Alert{
			Level:       types.AlertLevelWarning,
			Environment: run.Environment,
			RunID:       run.RunID,
			Message:     fmt.Sprintf("run blocked: %s", decision.Reason),
			Timestamp:   o.now(),
		})
		o.logger.Info("run blocked", "run", run.RunID, "reason", decision.Reason)
		return run, nil

	case types.VerdictRejected:
		metrics.GateRejections.Add(1)
		o.releaseLock(ctx, run)
		return run, o.fail(ctx, run, types.StageGate, fmt.Errorf("gate rejected run: %s", decision.Reason))
	}

	if err := o.transition(ctx, run, types.RunDeploying); err != nil {
		o.releaseLock(ctx, run)
		return run, err
	}
	o.audit(ctx, run, types.EventDeployStarted, "", nil)

	result, err := o.deployer.Execute(ctx, run)
	if err != nil {
		o.audit(ctx, run, types.EventDeployFailed, err.Error(), nil)
		o.releaseLock(ctx, run)
		return run, o.fail(ctx, run, types.StageDeploy, err)
	}
	run.Result = result
	o.audit(ctx, run, types.EventDeployCompleted, result.Message, nil)

	if err := o.transition(ctx, run, types.RunDone); err != nil {
		o.releaseLock(ctx, run)
		return run, err
	}
	o.audit(ctx, run, types.EventRunCompleted, "", nil)
	o.releaseLock(ctx, run)
	o.alert(ctx, types.Alert{
		Level:       types.AlertLevelInfo,
		Environment: run.Environment,
		RunID:       run.RunID,
		Message:     fmt.Sprintf("%s completed for %s", run.Action, run.Environment),
		Timestamp:   o.now(),
	})
	o.logger.Info("run completed", "run", run.RunID, "environment", run.Environment, "action", run.Action)
	return run, nil
}

// acquireLock claims the run's environment lock, retrying with exponential
// backoff under contention. Runs never queue: exhausting the retry budget
// fails the run.
func (o *Orchestrator) acquireLock(ctx context.Context, run *types.RunContext) error {
	key := lockKey(run.Environment)
	for attempt := 1; attempt <= o.lock.MaxAttempts; attempt++ {
		ok, err := o.store.AcquireLock(ctx, key, o.lock.TTL)
		if err != nil {
			return fmt.Errorf("acquiring lock for %s: %w", run.Environment, err)
		}
		if ok {
			return nil
		}
		metrics.LockContention.Add(1)
		o.audit(ctx, run, types.EventLockContended, "", map[string]interface{}{"attempt": attempt})
		if attempt == o.lock.MaxAttempts {
			break
		}
		wait := CalculateBackoff(o.lock, attempt)
		o.logger.Info("environment locked, backing off", "run", run.RunID,
			"environment", run.Environment, "attempt", attempt, "wait", wait)
		if err := o.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return &LockContentionError{Environment: run.Environment, Attempts: o.lock.MaxAttempts}
}

func (o *Orchestrator) releaseLock(ctx context.Context, run *types.RunContext) {
	if err := o.store.ReleaseLock(ctx, lockKey(run.Environment)); err != nil {
		o.logger.Warn("releasing environment lock", "run", run.RunID,
			"environment", run.Environment, "error", err)
	}
}

// fail records the failure stage and message, moves the run to FAILED, and
// returns the original cause.
func (o *Orchestrator) fail(ctx context.Context, run *types.RunContext, stage types.Stage, cause error) error {
	run.FailureStage = stage
	run.FailureMessage = cause.Error()
	if err := o.transition(ctx, run, types.RunFailed); err != nil {
		o.logger.Error("recording run failure", "run", run.RunID, "error", err)
	}
	o.audit(ctx, run, types.EventRunFailed, cause.Error(), map[string]interface{}{"stage": stage})
	o.alert(ctx, types.Alert{
		Level:       types.AlertLevelError,
		Environment: run.Environment,
		RunID:       run.RunID,
		Message:     fmt.Sprintf("run failed at %s: %s", stage, cause),
		Timestamp:   o.now(),
	})
	o.logger.Error("run failed", "run", run.RunID, "stage", stage, "error", cause)
	return cause
}

// transition validates and applies a status change, then persists the run.
func (o *Orchestrator) transition(ctx context.Context, run *types.RunContext, to types.RunStatus) error {
	if err := lifecycle.Transition(run.Status, to); err != nil {
		return err
	}
	run.Status = to
	return o.persist(ctx, run)
}

// persist writes the run with optimistic concurrency: the version check
// detects a competing writer (another executor resuming the same run).
func (o *Orchestrator) persist(ctx context.Context, run *types.RunContext) error {
	expected := run.Version
	run.Version++
	run.UpdatedAt = o.now()
	ok, err := o.store.CompareAndSwapRun(ctx, run.RunID, expected, *run)
	if err != nil {
		return fmt.Errorf("persisting run %s: %w", run.RunID, err)
	}
	if !ok {
		return fmt.Errorf("run %s was modified concurrently", run.RunID)
	}
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, run *types.RunContext, kind types.EventKind, message string, details map[string]interface{}) {
	event := types.Event{
		Kind:        kind,
		RunID:       run.RunID,
		Environment: run.Environment,
		Status:      string(run.Status),
		Message:     message,
		Details:     details,
		Timestamp:   o.now(),
	}
	if err := o.store.AppendEvent(ctx, event); err != nil {
		o.logger.Warn("appending audit event", "run", run.RunID, "kind", kind, "error", err)
	}
}

func lockKey(env types.Environment) string {
	return "env#" + string(env)
}

func defaultValidate(run *types.RunContext) error {
	for _, env := range types.AllEnvironments() {
		if run.Environment == env {
			return nil
		}
	}
	return fmt.Errorf("unknown environment %q", run.Environment)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
