// Package types defines the public domain types for the tfgate deployment orchestrator.
package types

import "fmt"

// Environment identifies an isolated deployment target with its own state,
// policy, and allowed source branches.
type Environment string

// Environment values enumerate the deployment targets.
const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// AllEnvironments lists every known environment in promotion order.
func AllEnvironments() []Environment {
	return []Environment{EnvDev, EnvStaging, EnvProd}
}

// ParseEnvironment validates and returns an Environment from a raw string.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvDev, EnvStaging, EnvProd:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("unknown environment %q (want dev, staging, or prod)", s)
	}
}

// Action is the operation a run performs against an environment.
type Action string

// Action values enumerate the supported run operations.
const (
	ActionPlan    Action = "plan"
	ActionApply   Action = "apply"
	ActionDestroy Action = "destroy"
)

// ParseAction returns an Action from a raw string. An empty string defaults
// to plan.
func ParseAction(s string) (Action, error) {
	if s == "" {
		return ActionPlan, nil
	}
	switch Action(s) {
	case ActionPlan, ActionApply, ActionDestroy:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q (want plan, apply, or destroy)", s)
	}
}

// Mutating reports whether the action changes infrastructure.
func (a Action) Mutating() bool {
	return a == ActionApply || a == ActionDestroy
}

// EventType classifies the incoming CI/VCS event shape.
type EventType string

// EventType values enumerate the recognized event shapes.
const (
	EventPush           EventType = "push"
	EventPullRequest    EventType = "pull_request"
	EventManualDispatch EventType = "workflow_dispatch"
)

// PlanClassification is the three-way outcome of a plan run, derived from
// the provisioning engine's exit signal.
type PlanClassification string

// PlanClassification values mirror the engine exit codes exactly:
// 0 no changes, 1 error, 2 changes pending.
const (
	PlanNoChange       PlanClassification = "NO_CHANGE"
	PlanFailed         PlanClassification = "FAILED"
	PlanChangesPending PlanClassification = "CHANGES_PENDING"
)

// Verdict is the approval gate's three-way decision.
type Verdict string

// Verdict values enumerate gate outcomes.
const (
	VerdictProceed  Verdict = "PROCEED"
	VerdictBlocked  Verdict = "BLOCKED"
	VerdictRejected Verdict = "REJECTED"
)

// RunStatus represents the lifecycle state of a deployment run.
type RunStatus string

// RunStatus values represent the lifecycle states of a run.
const (
	RunClassifying RunStatus = "CLASSIFYING"
	RunValidating  RunStatus = "VALIDATING"
	RunPlanning    RunStatus = "PLANNING"
	RunGating      RunStatus = "GATING"
	RunBlocked     RunStatus = "BLOCKED"
	RunDeploying   RunStatus = "DEPLOYING"
	RunDone        RunStatus = "DONE"
	RunFailed      RunStatus = "FAILED"
)

// Stage names a pipeline stage for error attribution and audit events.
type Stage string

// Stage values enumerate the orchestrator stages.
const (
	StageClassify Stage = "classify"
	StageValidate Stage = "validate"
	StageLock     Stage = "lock"
	StagePlan     Stage = "plan"
	StageGate     Stage = "gate"
	StageDeploy   Stage = "deploy"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// AlertLevel is the severity of a dispatched alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventRunStarted       EventKind = "RUN_STARTED"
	EventRunClassified    EventKind = "RUN_CLASSIFIED"
	EventRunSkipped       EventKind = "RUN_SKIPPED"
	EventRunValidated     EventKind = "RUN_VALIDATED"
	EventLockContended    EventKind = "LOCK_CONTENDED"
	EventPlanCompleted    EventKind = "PLAN_COMPLETED"
	EventPlanFailed       EventKind = "PLAN_FAILED"
	EventGateDecision     EventKind = "GATE_DECISION"
	EventApprovalRecorded EventKind = "APPROVAL_RECORDED"
	EventRunResumed       EventKind = "RUN_RESUMED"
	EventDeployStarted    EventKind = "DEPLOY_STARTED"
	EventDeployCompleted  EventKind = "DEPLOY_COMPLETED"
	EventDeployFailed     EventKind = "DEPLOY_FAILED"
	EventRunCompleted     EventKind = "RUN_COMPLETED"
	EventRunFailed        EventKind = "RUN_FAILED"
)
