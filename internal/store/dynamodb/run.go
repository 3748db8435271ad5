package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/tfgate/internal/lifecycle"
	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// runTTL returns the retention for a run item. Non-terminal runs get extra
// headroom so a long-blocked run cannot expire out from under its approvers.
func (s *Store) runTTL(status types.RunStatus) time.Duration {
	if lifecycle.IsTerminal(status) {
		return s.retentionTTL
	}
	return s.retentionTTL + 24*time.Hour
}

// PutRun stores a new run using dual-write: truth item plus a per-environment
// list copy. The truth item is created conditionally so replayed run IDs are
// rejected rather than overwritten.
func (s *Store) PutRun(ctx context.Context, run types.RunContext) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	ttl := fmt.Sprintf("%d", ttlEpoch(s.runTTL(run.Status)))

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":      &ddbtypes.AttributeValueMemberS{Value: runPK(run.RunID)},
			"SK":      &ddbtypes.AttributeValueMemberS{Value: runSK()},
			"data":    &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", run.Version)},
			"ttl":     &ddbtypes.AttributeValueMemberN{Value: ttl},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("run %q already exists", run.RunID)
		}
		return err
	}
	return s.putRunListCopy(ctx, run, data, ttl)
}

// CompareAndSwapRun updates a run only if the stored version matches. The
// list copy is written in the same transaction as the versioned truth item.
func (s *Store) CompareAndSwapRun(ctx context.Context, runID string, expectedVersion int, run types.RunContext) (bool, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return false, err
	}
	ttl := fmt.Sprintf("%d", ttlEpoch(s.runTTL(run.Status)))

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Put: &ddbtypes.Put{
					TableName: &s.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":      &ddbtypes.AttributeValueMemberS{Value: runPK(runID)},
						"SK":      &ddbtypes.AttributeValueMemberS{Value: runSK()},
						"data":    &ddbtypes.AttributeValueMemberS{Value: string(data)},
						"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", run.Version)},
						"ttl":     &ddbtypes.AttributeValueMemberN{Value: ttl},
					},
					ConditionExpression: aws.String("version = :expected"),
					ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
						":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
					},
				},
			},
			{
				Put: &ddbtypes.Put{
					TableName: &s.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: envPK(run.Environment)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: runListSK(run.CreatedAt, run.RunID)},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
					},
				},
			},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) putRunListCopy(ctx context.Context, run types.RunContext, data []byte, ttl string) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: envPK(run.Environment)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: runListSK(run.CreatedAt, run.RunID)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
		},
	})
	return err
}

// GetRun retrieves a run from the truth item (strongly consistent).
func (s *Store) GetRun(ctx context.Context, runID string) (*types.RunContext, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: runPK(runID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: runSK()},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}

	ttlVal, _ := attributeInt(out.Item, "ttl")
	if isExpired(ttlVal) {
		return nil, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var run types.RunContext
	if err := json.Unmarshal([]byte(data), &run); err != nil {
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
		envs = types.AllEnvironments()
	}

	var runs []types.RunContext
	for _, e := range envs {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     &ddbtypes.AttributeValueMemberS{Value: envPK(e)},
				":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRun},
			},
			ScanIndexForward: aws.Bool(false),
			Limit:            aws.Int32(int32(limit)),
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			ttlVal, _ := attributeInt(item, "ttl")
			if isExpired(ttlVal) {
				continue
			}
			data, err := attributeStr(item, "data")
			if err != nil {
				continue
			}
			var run types.RunContext
			if err := json.Unmarshal([]byte(data), &run); err != nil {
				s.logger.Warn("skipping undecodable run item", "error", err)
				continue
			}
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// attributeStr extracts a string attribute from a DynamoDB item.
func attributeStr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	var v string
	if err := attributevalue.Unmarshal(av, &v); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return v, nil
}

// attributeInt extracts an integer attribute from a DynamoDB item. A missing
// attribute reads as zero.
func attributeInt(item map[string]ddbtypes.AttributeValue, key string) (int64, error) {
	av, ok := item[key]
	if !ok {
		return 0, nil
	}
	var n int64
	if err := attributevalue.Unmarshal(av, &n); err != nil {
		return 0, fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return n, nil
}
