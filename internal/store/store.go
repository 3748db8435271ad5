// Package store defines the durable storage backend interface for tfgate.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the storage backend interface. DynamoDB and Redis/Valkey
// implementations ship; the mock in testutil covers tests.
type Store interface {
	// Run contexts (with CAS so a resumed run cannot race)
	PutRun(ctx context.Context, run types.RunContext) error
	GetRun(ctx context.Context, runID string) (*types.RunContext, error)
	ListRuns(ctx context.Context, env types.Environment, limit int) ([]types.RunContext, error)
	CompareAndSwapRun(ctx context.Context, runID string, expectedVersion int, run types.RunContext) (bool, error)

	// Plan artifact metadata; ConsumeArtifact is a conditional write that
	// returns false if the artifact was already consumed.
	PutArtifactMeta(ctx context.Context, meta types.PlanArtifact) error
	GetArtifactMeta(ctx context.Context, runID string) (*types.PlanArtifact, error)
	ConsumeArtifact(ctx context.Context, runID string) (bool, error)

	// Reviewer approvals
	RecordApproval(ctx context.Context, approval types.Approval) error
	ListApprovals(ctx context.Context, runID string) ([]types.Approval, error)

	// Event log: append-only audit trail, per environment
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, env types.Environment, limit int) ([]types.Event, error)

	// Distributed locking keyed by environment
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
