package orchestrator

import (
	"fmt"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// LockContentionError is returned when an environment's lock could not be
// acquired within the configured retry budget. The run fails without any
// stage having executed against the environment.
type LockContentionError struct {
	Environment types.Environment
	Attempts    int
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("environment %s is locked by another run (gave up after %d attempts)", e.Environment, e.Attempts)
}

// NotResumableError is returned when Resume is called on a run that is not
// parked in the blocked state.
type NotResumableError struct {
	RunID  string
	Status types.RunStatus
}

func (e *NotResumableError) Error() string {
	return fmt.Sprintf("run %s is %s; only blocked runs can be resumed", e.RunID, e.Status)
}
