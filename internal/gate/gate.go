// Package gate implements the approval checkpoint that stands between a
// completed plan and any infrastructure mutation.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// ApprovalOracle reports the reviewer sign-offs recorded for a run. The
// approval UX itself (who may review, how sign-off is collected) is managed
// externally; the gate only queries the result.
type ApprovalOracle interface {
	Approvals(ctx context.Context, runID string) ([]types.Approval, error)
}

// Gate evaluates environment policy against a run's state. It never mutates
// anything; it only decides.
type Gate struct {
	oracle    ApprovalOracle
	reviewers map[types.Environment][]string
	now       func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithReviewers sets the per-environment reviewer pools used for destroy
// consensus.
func WithReviewers(reviewers map[types.Environment][]string) Option {
	return func(g *Gate) { g.reviewers = reviewers }
}

// WithClock sets a custom time source (useful for testing wait timers).
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a Gate backed by the given oracle.
func New(oracle ApprovalOracle, opts ...Option) *Gate {
	g := &Gate{
		oracle: oracle,
		now:    time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Decide evaluates the run against its environment's policy and returns
// Proceed, Blocked (awaiting an external condition), or Rejected (the run
// can never deploy). The returned error reports oracle failures only.
func (g *Gate) Decide(ctx context.Context, run *types.RunContext) (types.Decision, error) {
	// Destroy bypasses the plan-classification check: destructive plans may
	// be generated ad hoc.
	if run.Action != types.ActionDestroy && run.Classification != types.PlanChangesPending {
		return g.rejected("nothing to deploy"), nil
	}

	if !run.ShouldDeploy {
		return g.rejected("not a deploy-eligible trigger"), nil
	}

	policy := PolicyFor(run.Environment)

	// A run from a forbidden branch can never proceed; reject it rather
	// than parking it behind the approval queue.
	if !policy.branchPermitted(run.Branch) {
		return g.rejected(fmt.Sprintf("branch %q not permitted for %s", run.Branch, run.Environment)), nil
	}

	required := policy.RequiredApprovals
	if run.Action == types.ActionDestroy && policy.DestroyRequiresAll {
		if pool := len(g.reviewers[run.Environment]); pool > required {
			required = pool
		}
	}

	if required > 0 {
		approvals, err := g.oracle.Approvals(ctx, run.RunID)
		if err != nil {
			return types.Decision{}, fmt.Errorf("querying approvals for run %s: %w", run.RunID, err)
		}
		if got := distinctReviewers(approvals); got < required {
			return g.blocked(fmt.Sprintf("awaiting approval: %d of %d required approvals", got, required)), nil
		}
	}

	if policy.WaitTimer > 0 {
		if remaining := policy.WaitTimer - g.now().Sub(run.CreatedAt); remaining > 0 {
			return g.blocked(fmt.Sprintf("wait timer: %s remaining", remaining.Round(time.Second))), nil
		}
	}

	return types.Decision{Verdict: types.VerdictProceed, DecidedAt: g.now()}, nil
}

func (g *Gate) rejected(reason string) types.Decision {
	return types.Decision{Verdict: types.VerdictRejected, Reason: reason, DecidedAt: g.now()}
}

func (g *Gate) blocked(reason string) types.Decision {
	return types.Decision{Verdict: types.VerdictBlocked, Reason: reason, DecidedAt: g.now()}
}

// distinctReviewers counts unique reviewers; repeated sign-offs by the same
// reviewer count once.
func distinctReviewers(approvals []types.Approval) int {
	seen := make(map[string]struct{}, len(approvals))
	for _, a := range approvals {
		if a.Reviewer == "" {
			continue
		}
		seen[a.Reviewer] = struct{}{}
	}
	return len(seen)
}

// StoreOracle adapts any approval lister (such as the durable store) to the
// ApprovalOracle interface.
type StoreOracle struct {
	Lister interface {
		ListApprovals(ctx context.Context, runID string) ([]types.Approval, error)
	}
}

// Approvals returns the approvals recorded for a run.
func (o StoreOracle) Approvals(ctx context.Context, runID string) ([]types.Approval, error) {
	return o.Lister.ListApprovals(ctx, runID)
}
