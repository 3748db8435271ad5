package types

import "time"

// TriggerEvent is an incoming CI/VCS event as ingested from the host. It is
// never mutated after ingestion; the classifier derives everything else.
type TriggerEvent struct {
	Type        EventType   `json:"type"`
	Branch      string      `json:"branch,omitempty"`      // push
	BaseBranch  string      `json:"baseBranch,omitempty"`  // pull_request
	HeadBranch  string      `json:"headBranch,omitempty"`  // pull_request
	Environment Environment `json:"environment,omitempty"` // workflow_dispatch
	Action      Action      `json:"action,omitempty"`      // workflow_dispatch
	Ref         string      `json:"ref,omitempty"`         // workflow_dispatch source ref
	Commit      string      `json:"commit,omitempty"`
	Actor       string      `json:"actor,omitempty"`
}

// Classification is the trigger classifier's output: which environment a run
// targets, what it does, and whether it is eligible to deploy.
type Classification struct {
	Environment  Environment `json:"environment"`
	Action       Action      `json:"action"`
	ShouldDeploy bool        `json:"shouldDeploy"`
	Branch       string      `json:"branch,omitempty"` // source branch for policy checks
	Skip         bool        `json:"skip,omitempty"`
	SkipReason   string      `json:"skipReason,omitempty"`
}

// PlanArtifact is the metadata record for a stored change-set. The plan
// bytes themselves live in the artifact store; this record binds them to
// exactly one environment and one run, and tracks single consumption.
type PlanArtifact struct {
	RunID       string      `json:"runId"`
	Environment Environment `json:"environment"`
	Commit      string      `json:"commit,omitempty"`
	Key         string      `json:"key"`
	SizeBytes   int64       `json:"sizeBytes,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	Consumed    bool        `json:"consumed"`
	ConsumedAt  *time.Time  `json:"consumedAt,omitempty"`
}

// Decision is the approval gate's verdict with its operator-visible reason.
type Decision struct {
	Verdict   Verdict   `json:"verdict"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// DeployResult reports the outcome of an apply or destroy.
type DeployResult struct {
	Action      Action                 `json:"action"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Message     string                 `json:"message,omitempty"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt time.Time              `json:"completedAt"`
}

// RunContext is the working record threaded through all stages of one run.
// It is owned by the orchestrator for the lifetime of the run and persisted
// so a blocked run can be resumed by a later approval event.
type RunContext struct {
	RunID          string             `json:"runId"`
	Event          TriggerEvent       `json:"event"`
	Environment    Environment        `json:"environment,omitempty"`
	Action         Action             `json:"action,omitempty"`
	ShouldDeploy   bool               `json:"shouldDeploy"`
	Branch         string             `json:"branch,omitempty"`
	Status         RunStatus          `json:"status"`
	Version        int                `json:"version"`
	Classification PlanClassification `json:"classification,omitempty"`
	Artifact       *PlanArtifact      `json:"artifact,omitempty"`
	Decision       *Decision          `json:"decision,omitempty"`
	Result         *DeployResult      `json:"result,omitempty"`
	FailureStage   Stage              `json:"failureStage,omitempty"`
	FailureMessage string             `json:"failureMessage,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Approval is a recorded reviewer sign-off for a run.
type Approval struct {
	RunID      string    `json:"runId"`
	Reviewer   string    `json:"reviewer"`
	Comment    string    `json:"comment,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level       AlertLevel             `json:"level"`
	Environment Environment            `json:"environment,omitempty"`
	RunID       string                 `json:"runId,omitempty"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Event is an append-only audit log entry recording what happened and when.
type Event struct {
	Kind        EventKind              `json:"kind"`
	RunID       string                 `json:"runId,omitempty"`
	Environment Environment            `json:"environment,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}
