package dynamodb

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// RecordApproval stores a reviewer sign-off. Keyed by reviewer, so a repeat
// sign-off by the same reviewer overwrites rather than double-counts.
func (s *Store) RecordApproval(ctx context.Context, approval types.Approval) error {
	item, err := attributevalue.MarshalMap(approval)
	if err != nil {
		return fmt.Errorf("marshaling approval: %w", err)
	}
	item["PK"] = &ddbtypes.AttributeValueMemberS{Value: runPK(approval.RunID)}
	item["SK"] = &ddbtypes.AttributeValueMemberS{Value: approvalSK(approval.Reviewer)}
	item["ttl"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(s.retentionTTL))}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	return err
}

// ListApprovals returns all recorded approvals for a run.
func (s *Store) ListApprovals(ctx context.Context, runID string) ([]types.Approval, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: runPK(runID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixApproval},
		},
	})
	if err != nil {
		return nil, err
	}

	approvals := make([]types.Approval, 0, len(out.Items))
	for _, item := range out.Items {
		var a types.Approval
		if err := attributevalue.UnmarshalMap(item, &a); err != nil {
			s.logger.Warn("skipping undecodable approval item", "run", runID, "error", err)
			continue
		}
		approvals = append(approvals, a)
	}
	sort.Slice(approvals, func(i, j int) bool { return approvals[i].RecordedAt.Before(approvals[j].RecordedAt) })
	return approvals, nil
}
