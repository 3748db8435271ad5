// Package lifecycle implements the deployment run state machine.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Transition table: from -> allowed tos. Any stage may fail; BLOCKED pauses
// the run pending approval rather than ending it.
var validTransitions = map[types.RunStatus][]types.RunStatus{
	types.RunClassifying: {types.RunValidating, types.RunDone, types.RunFailed},
	types.RunValidating:  {types.RunPlanning, types.RunFailed},
	types.RunPlanning:    {types.RunGating, types.RunFailed},
	types.RunGating:      {types.RunDeploying, types.RunBlocked, types.RunFailed},
	types.RunBlocked:     {types.RunGating, types.RunFailed},
	types.RunDeploying:   {types.RunDone, types.RunFailed},
	types.RunDone:        {},
	types.RunFailed:      {},
}

// CanTransition checks if transitioning from one run status to another is valid.
func CanTransition(from, to types.RunStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the move from one status to another, or returns an
// error if the transition is invalid.
func Transition(from, to types.RunStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.RunStatus) bool {
	return status == types.RunDone || status == types.RunFailed
}
