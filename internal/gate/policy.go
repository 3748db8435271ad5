package gate

import (
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Policy is the approval requirement set for one environment.
type Policy struct {
	RequiredApprovals int
	AllowedBranches   []string // empty means any branch
	WaitTimer         time.Duration
	// DestroyRequiresAll escalates destroy to full reviewer consensus.
	DestroyRequiresAll bool
}

// Fixed per-environment policy table. Deliberately not configurable: the
// gate must apply identically regardless of who or what initiated the run.
var policies = map[types.Environment]Policy{
	types.EnvDev: {
		RequiredApprovals: 0,
	},
	types.EnvStaging: {
		RequiredApprovals: 1,
		AllowedBranches:   []string{"staging"},
	},
	types.EnvProd: {
		RequiredApprovals:  2,
		AllowedBranches:    []string{"main"},
		WaitTimer:          5 * time.Minute,
		DestroyRequiresAll: true,
	},
}

// PolicyFor returns the fixed policy for an environment.
func PolicyFor(env types.Environment) Policy {
	return policies[env]
}

func (p Policy) branchPermitted(branch string) bool {
	if len(p.AllowedBranches) == 0 {
		return true
	}
	for _, b := range p.AllowedBranches {
		if b == branch {
			return true
		}
	}
	return false
}
