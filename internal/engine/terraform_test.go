package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

func testConfig() *types.TerraformConfig {
	return &types.TerraformConfig{
		Environments: map[types.Environment]types.EnvironmentConfig{
			types.EnvDev: {Dir: "envs/dev", VarFile: "dev.tfvars", BackendKey: "s3-buckets/dev/terraform.tfstate"},
		},
	}
}

func TestPlanArgs(t *testing.T) {
	cfg := types.EnvironmentConfig{VarFile: "dev.tfvars"}

	args := planArgs(cfg, types.ActionPlan, "/tmp/tfplan")
	assert.Contains(t, args, "-detailed-exitcode")
	assert.Contains(t, args, "-out=/tmp/tfplan")
	assert.Contains(t, args, "-var-file=dev.tfvars")
	assert.NotContains(t, args, "-destroy")

	args = planArgs(cfg, types.ActionDestroy, "/tmp/tfplan")
	assert.Contains(t, args, "-destroy")

	args = planArgs(types.EnvironmentConfig{}, types.ActionPlan, "/tmp/tfplan")
	for _, a := range args {
		assert.False(t, strings.HasPrefix(a, "-var-file="))
	}
}

func TestInitArgs(t *testing.T) {
	args := initArgs(types.EnvironmentConfig{BackendKey: "dev/terraform.tfstate"})
	assert.Contains(t, args, "-backend-config=key=dev/terraform.tfstate")
	assert.Contains(t, args, "-input=false")
}

func TestParseOutputs(t *testing.T) {
	data := []byte(`{
		"bucket_arn": {"sensitive": false, "type": "string", "value": "arn:aws:s3:::acme-dev"},
		"bucket_count": {"sensitive": false, "type": "number", "value": 3}
	}`)
	outputs, err := parseOutputs(data)
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:s3:::acme-dev", outputs["bucket_arn"])
	assert.Equal(t, float64(3), outputs["bucket_count"])

	outputs, err = parseOutputs([]byte("  \n"))
	require.NoError(t, err)
	assert.Nil(t, outputs)

	_, err = parseOutputs([]byte("not-json"))
	assert.Error(t, err)
}

func TestPlanExitCodeMapping(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		wantPlan bool
	}{
		{"no changes", ExitNoChanges, false},
		{"error", ExitError, false},
		{"changes pending", ExitChangesPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := NewTerraform(testConfig(), WithRunner(
				func(_ context.Context, _ string, _ string, args ...string) (string, string, int, error) {
					if tt.exitCode == ExitChangesPending {
						// The real binary writes the plan file before exiting 2.
						for _, a := range args {
							if strings.HasPrefix(a, "-out=") {
								require.NoError(t, os.WriteFile(strings.TrimPrefix(a, "-out="), []byte("plan-bytes"), 0o600))
							}
						}
					}
					return "plan output", "plan error", tt.exitCode, nil
				}))
			require.NoError(t, err)

			out, err := eng.Plan(context.Background(), types.EnvDev, types.ActionPlan)
			require.NoError(t, err)
			assert.Equal(t, tt.exitCode, out.ExitCode)
			if tt.wantPlan {
				assert.Equal(t, []byte("plan-bytes"), out.Plan)
			} else {
				assert.Nil(t, out.Plan)
			}
		})
	}
}

func TestPlanUnknownEnvironment(t *testing.T) {
	eng, err := NewTerraform(testConfig())
	require.NoError(t, err)
	_, err = eng.Plan(context.Background(), types.EnvProd, types.ActionPlan)
	assert.Error(t, err)
}

func TestApplyRequiresPlan(t *testing.T) {
	eng, err := NewTerraform(testConfig())
	require.NoError(t, err)
	_, err = eng.Apply(context.Background(), types.EnvDev, nil)
	assert.Error(t, err)
}

func TestApplyPassesPlanFile(t *testing.T) {
	var gotArgs []string
	eng, err := NewTerraform(testConfig(), WithRunner(
		func(_ context.Context, _ string, _ string, args ...string) (string, string, int, error) {
			if args[0] == "apply" {
				gotArgs = args
				return "applied", "", 0, nil
			}
			// output -json
			return `{"bucket_arn": {"value": "arn:aws:s3:::acme-dev"}}`, "", 0, nil
		}))
	require.NoError(t, err)

	out, err := eng.Apply(context.Background(), types.EnvDev, []byte("plan-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, gotArgs)
	assert.Contains(t, gotArgs, "-auto-approve")

	// The plan bytes were handed to the binary via a scratch file.
	planFile := gotArgs[len(gotArgs)-1]
	assert.Equal(t, "tfplan", filepath.Base(planFile))
	assert.Equal(t, "arn:aws:s3:::acme-dev", out.Outputs["bucket_arn"])
}

func TestRunCommandExitCode(t *testing.T) {
	_, _, code, err := runCommand(context.Background(), "", "sh", "-c", "exit 2")
	require.NoError(t, err)
	assert.Equal(t, 2, code)

	stdout, _, code, err := runCommand(context.Background(), "", "sh", "-c", "echo ok")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok\n", stdout)
}
