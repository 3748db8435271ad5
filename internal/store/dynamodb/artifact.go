package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// PutArtifactMeta stores the metadata record for a run's plan artifact.
func (s *Store) PutArtifactMeta(ctx context.Context, meta types.PlanArtifact) error {
	item, err := attributevalue.MarshalMap(meta)
	if err != nil {
		return fmt.Errorf("marshaling artifact metadata: %w", err)
	}
	item["PK"] = &ddbtypes.AttributeValueMemberS{Value: runPK(meta.RunID)}
	item["SK"] = &ddbtypes.AttributeValueMemberS{Value: artifactSK()}
	item["ttl"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(s.retentionTTL))}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	return err
}

// GetArtifactMeta retrieves a run's plan artifact metadata.
func (s *Store) GetArtifactMeta(ctx context.Context, runID string) (*types.PlanArtifact, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: runPK(runID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: artifactSK()},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("artifact for run %q: %w", runID, store.ErrNotFound)
	}

	var meta types.PlanArtifact
	if err := attributevalue.UnmarshalMap(out.Item, &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling artifact metadata: %w", err)
	}
	return &meta, nil
}

// ConsumeArtifact marks a run's artifact consumed with a conditional update:
// only one caller can ever flip the flag. Returns false if the artifact was
// already consumed.
func (s *Store) ConsumeArtifact(ctx context.Context, runID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: runPK(runID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: artifactSK()},
		},
		UpdateExpression:    aws.String("SET consumed = :true, consumedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK) AND consumed = :false"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":true":  &ddbtypes.AttributeValueMemberBOOL{Value: true},
			":false": &ddbtypes.AttributeValueMemberBOOL{Value: false},
			":now":   &ddbtypes.AttributeValueMemberS{Value: now},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			// Either the artifact does not exist or it was consumed before.
			// Distinguish the two for the caller.
			if _, gerr := s.GetArtifactMeta(ctx, runID); gerr != nil {
				return false, gerr
			}
			return false, nil
		}
		return false, err
	}
	return true, nil
}
