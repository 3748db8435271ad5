// Package testutil provides shared test utilities for tfgate.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.Mutex
	runs      map[string]types.RunContext
	artifacts map[string]types.PlanArtifact
	approvals map[string][]types.Approval
	events    []types.Event
	locks     map[string]time.Time // key -> expiry

	// FailLock makes the next n AcquireLock calls report contention.
	FailLock int
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		runs:      make(map[string]types.RunContext),
		artifacts: make(map[string]types.PlanArtifact),
		approvals: make(map[string][]types.Approval),
		locks:     make(map[string]time.Time),
	}
}

func (m *MockStore) PutRun(_ context.Context, run types.RunContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MockStore) GetRun(_ context.Context, runID string) (*types.RunContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := run
	return &copied, nil
}

func (m *MockStore) ListRuns(_ context.Context, env types.Environment, limit int) ([]types.RunContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.RunContext
	for _, run := range m.runs {
		if env == "" || run.Environment == env {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) CompareAndSwapRun(_ context.Context, runID string, expectedVersion int, run types.RunContext) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.runs[runID]
	if !ok || existing.Version != expectedVersion {
		return false, nil
	}
	m.runs[runID] = run
	return true, nil
}

func (m *MockStore) PutArtifactMeta(_ context.Context, meta types.PlanArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[meta.RunID] = meta
	return nil
}

func (m *MockStore) GetArtifactMeta(_ context.Context, runID string) (*types.PlanArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.artifacts[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := meta
	return &copied, nil
}

func (m *MockStore) ConsumeArtifact(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.artifacts[runID]
	if !ok {
		return false, store.ErrNotFound
	}
	if meta.Consumed {
		return false, nil
	}
	now := time.Now()
	meta.Consumed = true
	meta.ConsumedAt = &now
	m.artifacts[runID] = meta
	return true, nil
}

func (m *MockStore) RecordApproval(_ context.Context, approval types.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[approval.RunID] = append(m.approvals[approval.RunID], approval)
	return nil
}

func (m *MockStore) ListApprovals(_ context.Context, runID string) ([]types.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Approval(nil), m.approvals[runID]...), nil
}

func (m *MockStore) AppendEvent(_ context.Context, event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockStore) ListEvents(_ context.Context, env types.Environment, limit int) ([]types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if env == "" || e.Environment == env {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLock > 0 {
		m.FailLock--
		return false, nil
	}
	if expiry, held := m.locks[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockStore) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// LockHeld reports whether a lock key is currently held.
func (m *MockStore) LockHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, held := m.locks[key]
	return held && time.Now().Before(expiry)
}

// Events returns a copy of the audit log.
func (m *MockStore) Events() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Event(nil), m.events...)
}

func (m *MockStore) Start(_ context.Context) error { return nil }
func (m *MockStore) Stop(_ context.Context) error  { return nil }
func (m *MockStore) Ping(_ context.Context) error  { return nil }
