package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

type aggregationCounters struct {
	EventCount  int64    `dynamodbav:"event_count"`
	UniqueUsers []string `dynamodbav:"unique_users,stringset"`
}

// AggregationRepository applies atomic ADD updates to the aggregation table
type AggregationRepository struct {
	client API
	table  string
	now    func() time.Time
	log    *zap.Logger
}

// NewAggregationRepository creates a new DynamoDB aggregation repository
func NewAggregationRepository(client API, table string, log *zap.Logger) *AggregationRepository {
	return &AggregationRepository{
		client: client,
		table:  table,
		now:    time.Now,
		log:    log,
	}
}

// Increment adds one event and, optionally, one user to the bucket in a single UpdateItem
func (r *AggregationRepository) Increment(ctx context.Context, partitionKey, sortKey, userID string) (*domain.AggregationRecord, error) {
	update := "ADD event_count :one SET updated_at = :now"
	values := map[string]types.AttributeValue{
		":one": &types.AttributeValueMemberN{Value: "1"},
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().Unix(), 10)},
	}
	if userID != "" {
		update = "ADD event_count :one, unique_users :user SET updated_at = :now"
		values[":user"] = &types.AttributeValueMemberSS{Value: []string{userID}}
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"partition_key": &types.AttributeValueMemberS{Value: partitionKey},
			"sort_key":      &types.AttributeValueMemberS{Value: sortKey},
		},
		UpdateExpression:          aws.String(update),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %w", repository.ErrConflict, err)
		}
		return nil, fmt.Errorf("failed to update aggregation: %w", err)
	}

	var counters aggregationCounters
	if err := attributevalue.UnmarshalMap(out.Attributes, &counters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aggregation: %w", err)
	}

	return &domain.AggregationRecord{
		PartitionKey: partitionKey,
		SortKey:      sortKey,
		EventCount:   counters.EventCount,
		UniqueUsers:  int64(len(counters.UniqueUsers)),
	}, nil
}

func isConflict(err error) bool {
	var txConflict *types.TransactionConflictException
	if errors.As(err, &txConflict) {
		return true
	}
	var conditionErr *types.ConditionalCheckFailedException
	return errors.As(err, &conditionErr)
}
