package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/tfgate/internal/lifecycle"
	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// runKeyTTL returns the TTL for a run-related key based on status. Terminal
// runs get the configured retention; active runs an extra 24h buffer.
func (s *Store) runKeyTTL(status types.RunStatus) time.Duration {
	if lifecycle.IsTerminal(status) {
		return s.retentionTTL
	}
	return s.retentionTTL + 24*time.Hour
}

// PutRun stores a new run record and indexes it by environment.
func (s *Store) PutRun(ctx context.Context, run types.RunContext) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.runKey(run.RunID), data, s.runKeyTTL(run.Status))
	pipe.LPush(ctx, s.runIndexKey(run.Environment), run.RunID)
	pipe.LTrim(ctx, s.runIndexKey(run.Environment), 0, runIndexMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRun retrieves a run record.
func (s *Store) GetRun(ctx context.Context, runID string) (*types.RunContext, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var run types.RunContext
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns recent runs for an environment, newest first. An empty
// environment lists across all environments.
func (s *Store) ListRuns(ctx context.Context, env types.Environment, limit int) ([]types.RunContext, error) {
	if limit <= 0 {
		limit = 10
	}
	envs := []types.Environment{env}
	if env == "" {
		envs = append([]types.Environment{""}, types.AllEnvironments()...)
	}

	var runs []types.RunContext
	for _, e := range envs {
		ids, err := s.client.LRange(ctx, s.runIndexKey(e), 0, int64(limit-1)).Result()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			run, err := s.GetRun(ctx, id)
			if err != nil {
				// Expired records linger in the index until trimmed.
				continue
			}
			runs = append(runs, *run)
		}
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// CompareAndSwapRun atomically updates a run record if the stored version
// matches the expected one.
func (s *Store) CompareAndSwapRun(ctx context.Context, runID string, expectedVersion int, run types.RunContext) (bool, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return false, err
	}

	ttlMs := s.runKeyTTL(run.Status).Milliseconds()
	result, err := s.cas.Run(ctx, s.client, []string{s.runKey(runID)}, expectedVersion, string(data), ttlMs).Int()
	if err != nil {
		return false, err
	}
	if result != 1 {
		return false, nil
	}

	// The run was first indexed before classification, possibly under the
	// global segment. Move its index entry to the current environment.
	pipe := s.client.Pipeline()
	pipe.LRem(ctx, s.runIndexKey(""), 0, runID)
	pipe.LRem(ctx, s.runIndexKey(run.Environment), 0, runID)
	pipe.LPush(ctx, s.runIndexKey(run.Environment), runID)
	pipe.LTrim(ctx, s.runIndexKey(run.Environment), 0, runIndexMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("reindexing run", "run", runID, "error", err)
	}
	return true, nil
}

// PutArtifactMeta stores the metadata record for a run's plan artifact.
func (s *Store) PutArtifactMeta(ctx context.Context, meta types.PlanArtifact) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.artifactKey(meta.RunID), data, s.retentionTTL).Err()
}

// GetArtifactMeta retrieves a run's plan artifact metadata.
func (s *Store) GetArtifactMeta(ctx context.Context, runID string) (*types.PlanArtifact, error) {
	data, err := s.client.Get(ctx, s.artifactKey(runID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("artifact for run %q: %w", runID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var meta types.PlanArtifact
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ConsumeArtifact marks a run's artifact consumed. The consumption marker is
// claimed with SETNX, so exactly one caller wins even under concurrency; the
// metadata record is then updated to reflect it.
func (s *Store) ConsumeArtifact(ctx context.Context, runID string) (bool, error) {
	meta, err := s.GetArtifactMeta(ctx, runID)
	if err != nil {
		return false, err
	}
	if meta.Consumed {
		return false, nil
	}

	now := time.Now()
	won, err := s.client.SetNX(ctx, s.consumedKey(runID), now.UTC().Format(time.RFC3339Nano), s.retentionTTL).Result()
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	meta.Consumed = true
	meta.ConsumedAt = &now
	if err := s.PutArtifactMeta(ctx, *meta); err != nil {
		s.logger.Warn("updating consumed artifact metadata", "run", runID, "error", err)
	}
	return true, nil
}

// RecordApproval stores a reviewer sign-off, keyed by reviewer so repeats
// overwrite rather than double-count.
func (s *Store) RecordApproval(ctx context.Context, approval types.Approval) error {
	data, err := json.Marshal(approval)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.approvalKey(approval.RunID), approval.Reviewer, data)
	pipe.Expire(ctx, s.approvalKey(approval.RunID), s.retentionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// ListApprovals returns all recorded approvals for a run.
func (s *Store) ListApprovals(ctx context.Context, runID string) ([]types.Approval, error) {
	entries, err := s.client.HGetAll(ctx, s.approvalKey(runID)).Result()
	if err != nil {
		return nil, err
	}

	approvals := make([]types.Approval, 0, len(entries))
	for reviewer, data := range entries {
		var a types.Approval
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			s.logger.Warn("skipping corrupt approval entry", "run", runID, "reviewer", reviewer, "error", err)
			continue
		}
		approvals = append(approvals, a)
	}
	sort.Slice(approvals, func(i, j int) bool { return approvals[i].RecordedAt.Before(approvals[j].RecordedAt) })
	return approvals, nil
}

// AppendEvent stores an audit event in its environment's capped index.
func (s *Store) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.eventIndexKey(event.Environment), data)
	pipe.LTrim(ctx, s.eventIndexKey(event.Environment), 0, eventIndexMax-1)
	pipe.Expire(ctx, s.eventIndexKey(event.Environment), s.retentionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// ListEvents returns recent audit events, newest first. An empty environment
// lists across all environments plus pre-classification events.
func (s *Store) ListEvents(ctx context.Context, env types.Environment, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	envs := []types.Environment{env}
	if env == "" {
		envs = append([]types.Environment{""}, types.AllEnvironments()...)
	}

	var events []types.Event
	for _, e := range envs {
		entries, err := s.client.LRange(ctx, s.eventIndexKey(e), 0, int64(limit-1)).Result()
		if err != nil {
			return nil, err
		}
		for _, data := range entries {
			var event types.Event
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				s.logger.Warn("skipping corrupt event entry", "error", err)
				continue
			}
			events = append(events, event)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// AcquireLock attempts to acquire a distributed lock with the given key and TTL.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(key), "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ReleaseLock releases a distributed lock.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.lockKey(key)).Err()
}
