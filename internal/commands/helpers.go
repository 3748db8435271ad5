// Package commands implements the CLI subcommands for the tfgate binary.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/tfgate/internal/alert"
	"github.com/dwsmith1983/tfgate/internal/artifact"
	"github.com/dwsmith1983/tfgate/internal/deployer"
	"github.com/dwsmith1983/tfgate/internal/engine"
	"github.com/dwsmith1983/tfgate/internal/gate"
	"github.com/dwsmith1983/tfgate/internal/orchestrator"
	"github.com/dwsmith1983/tfgate/internal/planner"
	"github.com/dwsmith1983/tfgate/internal/store"
	ddbstore "github.com/dwsmith1983/tfgate/internal/store/dynamodb"
	redisstore "github.com/dwsmith1983/tfgate/internal/store/redis"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Exit codes follow terraform's detailed-exitcode convention: 0 clean,
// 1 error, 2 changes pending (or, for apply/destroy, awaiting approval).
const (
	ExitOK      = 0
	ExitError   = 1
	ExitPending = 2
)

// ExitCodeError carries a process exit code through cobra's error return.
type ExitCodeError struct {
	Code int
	Msg  string
}

func (e *ExitCodeError) Error() string { return e.Msg }

// newStore creates the configured durable store.
func newStore(cfg *types.ProjectConfig) (store.Store, error) {
	switch cfg.Store {
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when store is dynamodb")
		}
		return ddbstore.New(cfg.DynamoDB)
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when store is redis")
		}
		return redisstore.New(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported store: %q", cfg.Store)
	}
}

// newArtifactStore creates the plan artifact store, defaulting to a local
// directory when none is configured.
func newArtifactStore(cfg *types.ProjectConfig) (artifact.Store, error) {
	if cfg.Artifacts == nil || cfg.Artifacts.Type == "" {
		return artifact.NewFileStore(".tfgate/artifacts")
	}
	return artifact.New(cfg.Artifacts)
}

// buildOrchestrator wires the full run pipeline from project configuration.
// The returned cleanup stops the store connection.
func buildOrchestrator(ctx context.Context, cfg *types.ProjectConfig) (*orchestrator.Orchestrator, store.Store, func(), error) {
	st, err := newStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating store: %w", err)
	}
	if err := st.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to store: %w", err)
	}
	cleanup := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.Stop(stopCtx)
	}

	arts, err := newArtifactStore(cfg)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("creating artifact store: %w", err)
	}

	eng, err := engine.NewTerraform(cfg.Terraform)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("creating terraform engine: %w", err)
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	g := gate.New(gate.StoreOracle{Lister: st}, gate.WithReviewers(cfg.Reviewers))

	opts := []orchestrator.Option{
		orchestrator.WithAlertFunc(dispatcher.AlertFunc()),
		orchestrator.WithValidator(configuredEnvValidator(cfg)),
	}
	if cfg.Lock != nil {
		opts = append(opts, orchestrator.WithLockPolicy(orchestrator.LockPolicyFromConfig(cfg.Lock)))
	}

	orch := orchestrator.New(st,
		planner.New(eng, arts, st),
		deployer.New(eng, arts, st),
		g,
		opts...)
	return orch, st, cleanup, nil
}

// configuredEnvValidator rejects runs targeting environments that have no
// terraform working set in the project config.
func configuredEnvValidator(cfg *types.ProjectConfig) orchestrator.ValidateFunc {
	return func(run *types.RunContext) error {
		if _, err := types.ParseEnvironment(string(run.Environment)); err != nil {
			return err
		}
		if _, ok := cfg.Terraform.Environments[run.Environment]; !ok {
			return fmt.Errorf("environment %s is not configured", run.Environment)
		}
		return nil
	}
}

// dispatch runs a manually requested action through the orchestrator and
// maps the outcome to a process exit code.
func dispatch(ctx context.Context, cfg *types.ProjectConfig, event types.TriggerEvent) error {
	orch, _, cleanup, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	run, runErr := orch.Run(ctx, event)
	if run == nil {
		return fmt.Errorf("starting run: %w", runErr)
	}
	printRun(run)
	return exitStatus(run)
}

// exitStatus maps a finished run to the CLI exit code contract. Benign gate
// rejections, such as a plan with nothing to deploy, are not failures.
func exitStatus(run *types.RunContext) error {
	switch run.Status {
	case types.RunDone:
		if run.Action == types.ActionPlan && run.Artifact != nil {
			return &ExitCodeError{Code: ExitPending, Msg: "changes pending"}
		}
		return nil
	case types.RunBlocked:
		reason := "awaiting approval"
		if run.Decision != nil {
			reason = run.Decision.Reason
		}
		return &ExitCodeError{Code: ExitPending, Msg: fmt.Sprintf("run %s blocked: %s", run.RunID, reason)}
	case types.RunFailed:
		if benignRejection(run) {
			if run.Artifact != nil {
				return &ExitCodeError{Code: ExitPending, Msg: "changes pending"}
			}
			return nil
		}
		return &ExitCodeError{Code: ExitError, Msg: fmt.Sprintf("run %s failed at %s: %s", run.RunID, run.FailureStage, run.FailureMessage)}
	default:
		return &ExitCodeError{Code: ExitError, Msg: fmt.Sprintf("run %s ended in unexpected state %s", run.RunID, run.Status)}
	}
}

// benignRejection recognizes gate rejections that merely mean "there is
// nothing for the gate to pass through", not operator error.
func benignRejection(run *types.RunContext) bool {
	if run.FailureStage != types.StageGate {
		return false
	}
	return strings.Contains(run.FailureMessage, "nothing to deploy") ||
		strings.Contains(run.FailureMessage, "not a deploy-eligible trigger")
}

func printRun(run *types.RunContext) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Run %s\n", run.RunID)
	fmt.Printf("  Environment: %s\n", run.Environment)
	fmt.Printf("  Action:      %s\n", run.Action)
	fmt.Printf("  Status:      %s\n", colorStatus(run.Status))
	if run.Artifact != nil {
		consumed := "pending"
		if run.Artifact.Consumed {
			consumed = "consumed"
		}
		fmt.Printf("  Plan:        %s (%d bytes, %s)\n", run.Artifact.Key, run.Artifact.SizeBytes, consumed)
	}
	if run.Decision != nil {
		fmt.Printf("  Gate:        %s", run.Decision.Verdict)
		if run.Decision.Reason != "" {
			fmt.Printf(" (%s)", run.Decision.Reason)
		}
		fmt.Println()
	}
	if run.Status == types.RunFailed {
		fmt.Printf("  Failure:     [%s] %s\n", run.FailureStage, run.FailureMessage)
	}
	if run.Result != nil && len(run.Result.Outputs) > 0 {
		_, _ = bold.Println("  Outputs:")
		data, err := yaml.Marshal(run.Result.Outputs)
		if err == nil {
			for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
	}
}

func colorStatus(status types.RunStatus) string {
	switch status {
	case types.RunDone:
		return color.GreenString(string(status))
	case types.RunFailed:
		return color.RedString(string(status))
	case types.RunBlocked:
		return color.YellowString(string(status))
	default:
		return color.CyanString(string(status))
	}
}
