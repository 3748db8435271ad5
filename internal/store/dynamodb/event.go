package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// AppendEvent stores an audit event, partitioned by environment so an
// environment's history queries stay cheap.
func (s *Store) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: envPK(event.Environment)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: eventSK(event.Timestamp)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(s.retentionTTL))},
		},
	})
	return err
}

// ListEvents returns recent audit events, newest first. An empty environment
// lists across all environments plus pre-classification events.
func (s *Store) ListEvents(ctx context.Context, env types.Environment, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	pks := []string{envPK(env)}
	if env == "" {
		pks = []string{globalEnvPK}
		for _, e := range types.AllEnvironments() {
			pks = append(pks, envPK(e))
		}
	}

	var events []types.Event
	for _, pk := range pks {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
				":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixEvent},
			},
			ScanIndexForward: aws.Bool(false),
			Limit:            aws.Int32(int32(limit)),
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			data, err := attributeStr(item, "data")
			if err != nil {
				continue
			}
			var event types.Event
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				s.logger.Warn("skipping undecodable event item", "error", err)
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
