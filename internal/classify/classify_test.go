package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

func TestClassifyManualDispatch(t *testing.T) {
	tests := []struct {
		name       string
		event      types.TriggerEvent
		wantEnv    types.Environment
		wantAction types.Action
		wantDeploy bool
	}{
		{
			name:       "prod apply taken verbatim",
			event:      types.TriggerEvent{Type: types.EventManualDispatch, Environment: types.EnvProd, Action: types.ActionApply, Ref: "main"},
			wantEnv:    types.EnvProd,
			wantAction: types.ActionApply,
			wantDeploy: true,
		},
		{
			name:       "prod destroy taken verbatim",
			event:      types.TriggerEvent{Type: types.EventManualDispatch, Environment: types.EnvProd, Action: types.ActionDestroy, Ref: "main"},
			wantEnv:    types.EnvProd,
			wantAction: types.ActionDestroy,
			wantDeploy: true,
		},
		{
			name:       "dispatched plan is not deploy-eligible",
			event:      types.TriggerEvent{Type: types.EventManualDispatch, Environment: types.EnvDev, Action: types.ActionPlan},
			wantEnv:    types.EnvDev,
			wantAction: types.ActionPlan,
			wantDeploy: false,
		},
		{
			name:       "empty action defaults to plan",
			event:      types.TriggerEvent{Type: types.EventManualDispatch, Environment: types.EnvStaging},
			wantEnv:    types.EnvStaging,
			wantAction: types.ActionPlan,
			wantDeploy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Classify(tt.event)
			require.NoError(t, err)
			assert.False(t, c.Skip)
			assert.Equal(t, tt.wantEnv, c.Environment)
			assert.Equal(t, tt.wantAction, c.Action)
			assert.Equal(t, tt.wantDeploy, c.ShouldDeploy)
		})
	}
}

func TestClassifyPullRequest(t *testing.T) {
	tests := []struct {
		base    string
		wantEnv types.Environment
	}{
		{"main", types.EnvProd},
		{"staging", types.EnvStaging},
		{"dev", types.EnvDev},
		{"feature/widgets", types.EnvDev},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c, err := Classify(types.TriggerEvent{
				Type:       types.EventPullRequest,
				BaseBranch: tt.base,
				HeadBranch: "topic",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnv, c.Environment)
			assert.Equal(t, types.ActionPlan, c.Action)
			assert.False(t, c.ShouldDeploy, "pull request plans never auto-deploy")
			assert.Equal(t, "topic", c.Branch)
		})
	}
}

func TestClassifyPush(t *testing.T) {
	c, err := Classify(types.TriggerEvent{Type: types.EventPush, Branch: "dev"})
	require.NoError(t, err)
	assert.Equal(t, types.EnvDev, c.Environment)
	assert.Equal(t, types.ActionPlan, c.Action)
	assert.True(t, c.ShouldDeploy)

	c, err = Classify(types.TriggerEvent{Type: types.EventPush, Branch: "staging"})
	require.NoError(t, err)
	assert.Equal(t, types.EnvStaging, c.Environment)
	assert.True(t, c.ShouldDeploy)

	// Pushes to any other branch are a no-op.
	c, err = Classify(types.TriggerEvent{Type: types.EventPush, Branch: "feature/x"})
	require.NoError(t, err)
	assert.True(t, c.Skip)
	assert.NotEmpty(t, c.SkipReason)
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name  string
		event types.TriggerEvent
	}{
		{"missing type", types.TriggerEvent{}},
		{"unknown type", types.TriggerEvent{Type: "deployment_status"}},
		{"dispatch without environment", types.TriggerEvent{Type: types.EventManualDispatch, Action: types.ActionApply}},
		{"dispatch with bogus environment", types.TriggerEvent{Type: types.EventManualDispatch, Environment: "qa", Action: types.ActionApply}},
		{"dispatch with bogus action", types.TriggerEvent{Type: types.EventManualDispatch, Environment: types.EnvDev, Action: "rollback"}},
		{"pull request without base", types.TriggerEvent{Type: types.EventPullRequest, HeadBranch: "topic"}},
		{"push without branch", types.TriggerEvent{Type: types.EventPush}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.event)
			require.Error(t, err)
			var cerr *Error
			assert.ErrorAs(t, err, &cerr)
		})
	}
}

// Classification is a pure function of the event.
func TestClassifyDeterministic(t *testing.T) {
	events := []types.TriggerEvent{
		{Type: types.EventPush, Branch: "dev"},
		{Type: types.EventPullRequest, BaseBranch: "main", HeadBranch: "topic"},
		{Type: types.EventManualDispatch, Environment: types.EnvProd, Action: types.ActionDestroy, Ref: "main"},
	}
	for _, e := range events {
		first, err := Classify(e)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Classify(e)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}
