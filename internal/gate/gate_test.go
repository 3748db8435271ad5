package gate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

type fakeOracle struct {
	approvals []types.Approval
	err       error
}

func (f *fakeOracle) Approvals(_ context.Context, _ string) ([]types.Approval, error) {
	return f.approvals, f.err
}

func approvalsFrom(reviewers ...string) []types.Approval {
	var out []types.Approval
	for _, r := range reviewers {
		out = append(out, types.Approval{RunID: "run-1", Reviewer: r, RecordedAt: time.Now()})
	}
	return out
}

func baseRun(env types.Environment, action types.Action) *types.RunContext {
	return &types.RunContext{
		RunID:          "run-1",
		Environment:    env,
		Action:         action,
		ShouldDeploy:   true,
		Classification: types.PlanChangesPending,
		CreatedAt:      time.Now().Add(-time.Hour),
	}
}

func TestDecideRejectsNothingToDeploy(t *testing.T) {
	g := New(&fakeOracle{})

	for _, cls := range []types.PlanClassification{types.PlanNoChange, types.PlanFailed} {
		run := baseRun(types.EnvDev, types.ActionApply)
		run.Classification = cls
		d, err := g.Decide(context.Background(), run)
		require.NoError(t, err)
		assert.Equal(t, types.VerdictRejected, d.Verdict)
		assert.Equal(t, "nothing to deploy", d.Reason)
	}

	// Destroy bypasses the classification check entirely.
	run := baseRun(types.EnvDev, types.ActionDestroy)
	run.Classification = types.PlanNoChange
	d, err := g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictProceed, d.Verdict)
}

func TestDecideRejectsNonDeployTrigger(t *testing.T) {
	g := New(&fakeOracle{})

	// A pull-request plan against main resolves to prod but is never
	// deploy-eligible, regardless of classification.
	for _, cls := range []types.PlanClassification{types.PlanNoChange, types.PlanChangesPending} {
		run := baseRun(types.EnvProd, types.ActionPlan)
		run.Branch = "topic"
		run.ShouldDeploy = false
		run.Classification = cls
		d, err := g.Decide(context.Background(), run)
		require.NoError(t, err)
		assert.Equal(t, types.VerdictRejected, d.Verdict)
		if cls == types.PlanChangesPending {
			assert.Equal(t, "not a deploy-eligible trigger", d.Reason)
		}
	}
}

func TestDecideDevNoReviewers(t *testing.T) {
	g := New(&fakeOracle{})

	run := baseRun(types.EnvDev, types.ActionPlan)
	run.Branch = "dev"
	d, err := g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictProceed, d.Verdict)
}

func TestDecideBranchRestriction(t *testing.T) {
	g := New(&fakeOracle{approvals: approvalsFrom("alice", "bob")})

	run := baseRun(types.EnvStaging, types.ActionApply)
	run.Branch = "feature/x"
	d, err := g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictRejected, d.Verdict)
	assert.Contains(t, d.Reason, "not permitted")

	run.Branch = "staging"
	d, err = g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictProceed, d.Verdict)
}

func TestDecideBlocksAwaitingApproval(t *testing.T) {
	oracle := &fakeOracle{approvals: approvalsFrom("alice")}
	g := New(oracle)

	run := baseRun(types.EnvProd, types.ActionApply)
	run.Branch = "main"
	d, err := g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictBlocked, d.Verdict)
	assert.Equal(t, "awaiting approval: 1 of 2 required approvals", d.Reason)

	// Re-evaluation after the second sign-off proceeds (wait timer long past).
	oracle.approvals = approvalsFrom("alice", "bob")
	d, err = g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictProceed, d.Verdict)
}

func TestDecideDuplicateReviewerCountsOnce(t *testing.T) {
	g := New(&fakeOracle{approvals: approvalsFrom("alice", "alice", "alice")})

	run := baseRun(types.EnvProd, types.ActionApply)
	run.Branch = "main"
	d, err := g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictBlocked, d.Verdict)
	assert.Contains(t, d.Reason, "1 of 2")
}

func TestDecideProdDestroyConsensus(t *testing.T) {
	oracle := &fakeOracle{approvals: approvalsFrom("alice", "bob")}
	g := New(oracle, WithReviewers(map[types.Environment][]string{
		types.EnvProd: {"alice", "bob", "carol"},
	}))

	// Destroy needs the full pool, not just the usual two.
	run := baseRun(types.EnvProd, types.ActionDestroy)
	run.Branch = "main"
	d, err := g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictBlocked, d.Verdict)
	assert.Contains(t, d.Reason, "2 of 3")

	oracle.approvals = approvalsFrom("alice", "bob", "carol")
	d, err = g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictProceed, d.Verdict)
}

func TestDecideWaitTimer(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := created.Add(time.Minute)
	g := New(&fakeOracle{approvals: approvalsFrom("alice", "bob")},
		WithClock(func() time.Time { return now }))

	run := baseRun(types.EnvProd, types.ActionApply)
	run.Branch = "main"
	run.CreatedAt = created

	d, err := g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictBlocked, d.Verdict)
	assert.Contains(t, d.Reason, "wait timer")

	now = created.Add(6 * time.Minute)
	d, err = g.Decide(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictProceed, d.Verdict)
}

func TestDecideOracleError(t *testing.T) {
	g := New(&fakeOracle{err: fmt.Errorf("store unavailable")})

	run := baseRun(types.EnvProd, types.ActionApply)
	run.Branch = "main"
	_, err := g.Decide(context.Background(), run)
	assert.Error(t, err)
}

func TestPolicyTable(t *testing.T) {
	assert.Equal(t, 0, PolicyFor(types.EnvDev).RequiredApprovals)
	assert.Empty(t, PolicyFor(types.EnvDev).AllowedBranches)
	assert.Equal(t, 1, PolicyFor(types.EnvStaging).RequiredApprovals)
	assert.Equal(t, []string{"staging"}, PolicyFor(types.EnvStaging).AllowedBranches)
	assert.Equal(t, 2, PolicyFor(types.EnvProd).RequiredApprovals)
	assert.Equal(t, []string{"main"}, PolicyFor(types.EnvProd).AllowedBranches)
	assert.True(t, PolicyFor(types.EnvProd).DestroyRequiresAll)
	assert.NotZero(t, PolicyFor(types.EnvProd).WaitTimer)
}
