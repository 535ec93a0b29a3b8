package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/repository"
)

const testPartitionKey = "exp_789#variant#treatment#hour#2025-01-15-10"

func TestAggregationRepository_Increment_WithUser(t *testing.T) {
	api := new(MockDynamoDBAPI)
	repo := NewAggregationRepository(api, "aggregations", zap.NewNop())

	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		users, ok := in.ExpressionAttributeValues[":user"].(*types.AttributeValueMemberSS)
		return aws.ToString(in.UpdateExpression) == "ADD event_count :one, unique_users :user SET updated_at = :now" &&
			ok && users.Value[0] == "user-1" &&
			in.Key["partition_key"].(*types.AttributeValueMemberS).Value == testPartitionKey &&
			in.Key["sort_key"].(*types.AttributeValueMemberS).Value == "event#conversion"
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{
			"event_count":  &types.AttributeValueMemberN{Value: "7"},
			"unique_users": &types.AttributeValueMemberSS{Value: []string{"user-1", "user-2"}},
		},
	}, nil)

	rec, err := repo.Increment(context.Background(), testPartitionKey, "event#conversion", "user-1")

	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.EventCount)
	assert.Equal(t, int64(2), rec.UniqueUsers)
	assert.Equal(t, testPartitionKey, rec.PartitionKey)
}

func TestAggregationRepository_Increment_WithoutUser(t *testing.T) {
	api := new(MockDynamoDBAPI)
	repo := NewAggregationRepository(api, "aggregations", zap.NewNop())

	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		_, hasUser := in.ExpressionAttributeValues[":user"]
		return aws.ToString(in.UpdateExpression) == "ADD event_count :one SET updated_at = :now" && !hasUser
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{
			"event_count": &types.AttributeValueMemberN{Value: "1"},
		},
	}, nil)

	rec, err := repo.Increment(context.Background(), testPartitionKey, "event#exposure", "")

	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.EventCount)
	assert.Equal(t, int64(0), rec.UniqueUsers)
}

func TestAggregationRepository_Increment_ConflictIsRetryable(t *testing.T) {
	api := new(MockDynamoDBAPI)
	repo := NewAggregationRepository(api, "aggregations", zap.NewNop())

	api.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &types.TransactionConflictException{Message: aws.String("conflict")})

	_, err := repo.Increment(context.Background(), testPartitionKey, "event#conversion", "user-1")

	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestAggregationRepository_Increment_OtherError(t *testing.T) {
	api := new(MockDynamoDBAPI)
	repo := NewAggregationRepository(api, "aggregations", zap.NewNop())

	api.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errors.New("validation exception"))

	_, err := repo.Increment(context.Background(), testPartitionKey, "event#conversion", "user-1")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrConflict)
}
