//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("tfgate-test-%d:", time.Now().UnixNano())
	s := NewFromClient(client, prefix)

	t.Cleanup(func() {
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		client.Close()
	})
	return s
}

func TestRunRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := types.RunContext{
		RunID:       "run-rt",
		Environment: types.EnvDev,
		Action:      types.ActionApply,
		Status:      types.RunClassifying,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.PutRun(ctx, run))

	got, err := s.GetRun(ctx, "run-rt")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, types.RunClassifying, got.Status)

	_, err = s.GetRun(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompareAndSwapRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := types.RunContext{RunID: "run-cas", Environment: types.EnvDev, Status: types.RunClassifying, Version: 1, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.PutRun(ctx, run))

	run.Status = types.RunValidating
	run.Version = 2
	ok, err := s.CompareAndSwapRun(ctx, run.RunID, 1, run)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale writer loses.
	run.Version = 3
	ok, err = s.CompareAndSwapRun(ctx, run.RunID, 1, run)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestConsumeArtifactOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	meta := types.PlanArtifact{RunID: "run-art", Environment: types.EnvStaging, Key: "plans/staging/run-art/tfplan", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.PutArtifactMeta(ctx, meta))

	ok, err := s.ConsumeArtifact(ctx, "run-art")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ConsumeArtifact(ctx, "run-art")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetArtifactMeta(ctx, "run-art")
	require.NoError(t, err)
	assert.True(t, got.Consumed)
}

func TestApprovalsDedupeByReviewer(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.RecordApproval(ctx, types.Approval{RunID: "run-ap", Reviewer: "alice", RecordedAt: time.Now().UTC()}))
	}
	require.NoError(t, s.RecordApproval(ctx, types.Approval{RunID: "run-ap", Reviewer: "bob", RecordedAt: time.Now().UTC()}))

	approvals, err := s.ListApprovals(ctx, "run-ap")
	require.NoError(t, err)
	assert.Len(t, approvals, 2)
}

func TestLockExclusion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "env#prod", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "env#prod", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "env#prod"))
	ok, err = s.AcquireLock(ctx, "env#prod", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventsNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, types.Event{
			Kind:        types.EventRunStarted,
			RunID:       fmt.Sprintf("run-%d", i),
			Environment: types.EnvDev,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := s.ListEvents(ctx, types.EnvDev, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "run-2", events[0].RunID)
}
