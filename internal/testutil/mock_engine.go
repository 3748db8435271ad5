package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dwsmith1983/tfgate/internal/engine"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ engine.Engine = (*MockEngine)(nil)

// MockEngine is a scripted Engine implementation for testing. Configure the
// plan exit code and apply/destroy outcomes, then assert on call counts.
type MockEngine struct {
	mu sync.Mutex

	PlanExitCode int
	PlanBytes    []byte
	PlanStderr   string
	PlanErr      error

	ApplyErr     error
	ApplyOutputs map[string]interface{}
	DestroyErr   error

	InitCalls    int
	PlanCalls    int
	ApplyCalls   int
	DestroyCalls int

	// LastApplyPlan records the plan bytes handed to Apply.
	LastApplyPlan []byte
}

// NewMockEngine returns a MockEngine that reports changes pending by default.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		PlanExitCode: engine.ExitChangesPending,
		PlanBytes:    []byte("mock-plan"),
	}
}

func (m *MockEngine) Init(_ context.Context, _ types.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitCalls++
	return nil
}

func (m *MockEngine) Plan(_ context.Context, _ types.Environment, _ types.Action) (*engine.PlanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlanCalls++
	if m.PlanErr != nil {
		return nil, m.PlanErr
	}
	out := &engine.PlanOutput{ExitCode: m.PlanExitCode, ErrorOutput: m.PlanStderr}
	if m.PlanExitCode == engine.ExitChangesPending {
		out.Plan = m.PlanBytes
	}
	return out, nil
}

func (m *MockEngine) Apply(_ context.Context, _ types.Environment, plan []byte) (*engine.ApplyOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyCalls++
	m.LastApplyPlan = plan
	if m.ApplyErr != nil {
		return nil, m.ApplyErr
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("apply requires a plan artifact")
	}
	return &engine.ApplyOutput{Outputs: m.ApplyOutputs}, nil
}

func (m *MockEngine) Destroy(_ context.Context, _ types.Environment) (*engine.ApplyOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCalls++
	if m.DestroyErr != nil {
		return nil, m.DestroyErr
	}
	return &engine.ApplyOutput{}, nil
}

// Calls returns the total number of mutating engine calls.
func (m *MockEngine) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ApplyCalls + m.DestroyCalls
}
