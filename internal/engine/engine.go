// Package engine defines the provisioning engine contract and its
// Terraform CLI implementation.
package engine

import (
	"context"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Engine exit codes from plan in detailed-exitcode mode. The approval gate's
// logic depends on this three-way contract; it must be preserved exactly.
const (
	ExitNoChanges      = 0
	ExitError          = 1
	ExitChangesPending = 2
)

// PlanOutput is the result of a diff run. Plan holds the serialized
// change-set when ExitCode is ExitChangesPending, nil otherwise.
type PlanOutput struct {
	ExitCode    int
	Plan        []byte
	Output      string
	ErrorOutput string
}

// ApplyOutput is the result of a successful mutation.
type ApplyOutput struct {
	Outputs map[string]interface{}
	Output  string
}

// Engine is the provisioning engine behind the orchestrator. Plan never
// mutates infrastructure; Apply and Destroy mutate and are not retryable.
type Engine interface {
	Init(ctx context.Context, env types.Environment) error
	Plan(ctx context.Context, env types.Environment, action types.Action) (*PlanOutput, error)
	Apply(ctx context.Context, env types.Environment, plan []byte) (*ApplyOutput, error)
	Destroy(ctx context.Context, env types.Environment) (*ApplyOutput, error)
}
