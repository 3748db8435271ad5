package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ Engine = (*Terraform)(nil)

const defaultBinary = "terraform"

// commandRunner executes a command in dir and returns stdout, stderr, and
// the process exit code. Injectable for tests.
type commandRunner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, exitCode int, err error)

// Terraform drives the terraform binary per environment.
type Terraform struct {
	binary string
	envs   map[types.Environment]types.EnvironmentConfig
	logger *slog.Logger
	run    commandRunner
}

// TerraformOption configures a Terraform engine.
type TerraformOption func(*Terraform)

// WithRunner sets a custom command runner (useful for testing).
func WithRunner(r commandRunner) TerraformOption {
	return func(t *Terraform) { t.run = r }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) TerraformOption {
	return func(t *Terraform) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTerraform creates a Terraform engine from project configuration.
func NewTerraform(cfg *types.TerraformConfig, opts ...TerraformOption) (*Terraform, error) {
	if cfg == nil || len(cfg.Environments) == 0 {
		return nil, fmt.Errorf("terraform config with at least one environment is required")
	}
	binary := cfg.Binary
	if binary == "" {
		binary = defaultBinary
	}
	t := &Terraform{
		binary: binary,
		envs:   cfg.Environments,
		logger: slog.Default(),
		run:    runCommand,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

func (t *Terraform) envConfig(env types.Environment) (types.EnvironmentConfig, error) {
	cfg, ok := t.envs[env]
	if !ok {
		return types.EnvironmentConfig{}, fmt.Errorf("no terraform configuration for environment %q", env)
	}
	return cfg, nil
}

// Init prepares the working directory and selects the environment's state key.
func (t *Terraform) Init(ctx context.Context, env types.Environment) error {
	cfg, err := t.envConfig(env)
	if err != nil {
		return err
	}

	args := initArgs(cfg)
	t.logger.Debug("terraform init", "environment", env, "dir", cfg.Dir)
	_, stderr, code, err := t.run(ctx, cfg.Dir, t.binary, args...)
	if err != nil {
		return fmt.Errorf("terraform init: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("terraform init exited %d: %s", code, stderr)
	}
	return nil
}

// Plan runs a read-only diff and returns the engine's three-way exit signal.
// A destroy action diffs against a destroy intent instead of create/update.
func (t *Terraform) Plan(ctx context.Context, env types.Environment, action types.Action) (*PlanOutput, error) {
	cfg, err := t.envConfig(env)
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "tfgate-plan-")
	if err != nil {
		return nil, fmt.Errorf("creating plan scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	planFile := filepath.Join(tmp, "tfplan")
	args := planArgs(cfg, action, planFile)

	t.logger.Debug("terraform plan", "environment", env, "action", action)
	stdout, stderr, code, err := t.run(ctx, cfg.Dir, t.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("terraform plan: %w", err)
	}

	out := &PlanOutput{ExitCode: code, Output: stdout, ErrorOutput: stderr}
	switch code {
	case ExitNoChanges, ExitError:
		return out, nil
	case ExitChangesPending:
		plan, err := os.ReadFile(planFile)
		if err != nil {
			return nil, fmt.Errorf("reading plan file: %w", err)
		}
		out.Plan = plan
		return out, nil
	default:
		return nil, fmt.Errorf("terraform plan exited with unexpected code %d: %s", code, stderr)
	}
}

// Apply applies a previously produced plan. Terraform itself rejects a saved
// plan whose underlying state has changed since planning, which is how
// artifact staleness is detected.
func (t *Terraform) Apply(ctx context.Context, env types.Environment, plan []byte) (*ApplyOutput, error) {
	cfg, err := t.envConfig(env)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("apply requires a plan artifact")
	}

	tmp, err := os.MkdirTemp("", "tfgate-apply-")
	if err != nil {
		return nil, fmt.Errorf("creating apply scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	planFile := filepath.Join(tmp, "tfplan")
	if err := os.WriteFile(planFile, plan, 0o600); err != nil {
		return nil, fmt.Errorf("writing plan file: %w", err)
	}

	t.logger.Info("terraform apply", "environment", env)
	stdout, stderr, code, err := t.run(ctx, cfg.Dir, t.binary, applyArgs(planFile)...)
	if err != nil {
		return nil, fmt.Errorf("terraform apply: %w", err)
	}
	if code != 0 {
		return nil, fmt.Errorf("terraform apply exited %d: %s", code, stderr)
	}

	outputs, err := t.readOutputs(ctx, cfg)
	if err != nil {
		// The mutation succeeded; a failed output read should not fail the run.
		t.logger.Warn("reading terraform outputs", "environment", env, "error", err)
	}
	return &ApplyOutput{Outputs: outputs, Output: stdout}, nil
}

// Destroy removes all managed infrastructure in the environment.
func (t *Terraform) Destroy(ctx context.Context, env types.Environment) (*ApplyOutput, error) {
	cfg, err := t.envConfig(env)
	if err != nil {
		return nil, err
	}

	t.logger.Info("terraform destroy", "environment", env)
	stdout, stderr, code, err := t.run(ctx, cfg.Dir, t.binary, destroyArgs(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("terraform destroy: %w", err)
	}
	if code != 0 {
		return nil, fmt.Errorf("terraform destroy exited %d: %s", code, stderr)
	}
	return &ApplyOutput{Output: stdout}, nil
}

func (t *Terraform) readOutputs(ctx context.Context, cfg types.EnvironmentConfig) (map[string]interface{}, error) {
	stdout, stderr, code, err := t.run(ctx, cfg.Dir, t.binary, "output", "-json")
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("terraform output exited %d: %s", code, stderr)
	}
	return parseOutputs([]byte(stdout))
}

func initArgs(cfg types.EnvironmentConfig) []string {
	args := []string{"init", "-input=false", "-no-color"}
	if cfg.BackendKey != "" {
		args = append(args, "-backend-config=key="+cfg.BackendKey)
	}
	return args
}

func planArgs(cfg types.EnvironmentConfig, action types.Action, planFile string) []string {
	args := []string{"plan", "-input=false", "-no-color", "-detailed-exitcode", "-out=" + planFile}
	if cfg.VarFile != "" {
		args = append(args, "-var-file="+cfg.VarFile)
	}
	if action == types.ActionDestroy {
		args = append(args, "-destroy")
	}
	return args
}

func applyArgs(planFile string) []string {
	return []string{"apply", "-input=false", "-no-color", "-auto-approve", planFile}
}

func destroyArgs(cfg types.EnvironmentConfig) []string {
	args := []string{"destroy", "-input=false", "-no-color", "-auto-approve"}
	if cfg.VarFile != "" {
		args = append(args, "-var-file="+cfg.VarFile)
	}
	return args
}

// parseOutputs decodes `terraform output -json` into a flat name -> value map.
func parseOutputs(data []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raw map[string]struct {
		Value interface{} `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing terraform outputs: %w", err)
	}
	outputs := make(map[string]interface{}, len(raw))
	for name, o := range raw {
		outputs[name] = o.Value
	}
	return outputs, nil
}

// runCommand is the default commandRunner backed by os/exec.
func runCommand(ctx context.Context, dir, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}
