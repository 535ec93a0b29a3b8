package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

// ExperimentRepository reads experiment configurations maintained by the experiment management API
type ExperimentRepository struct {
	client   API
	table    string
	keyIndex string
	log      *zap.Logger
}

// NewExperimentRepository creates a new DynamoDB experiment repository
func NewExperimentRepository(client API, table, keyIndex string, log *zap.Logger) *ExperimentRepository {
	return &ExperimentRepository{
		client:   client,
		table:    table,
		keyIndex: keyIndex,
		log:      log,
	}
}

// GetByID returns the experiment with the given identifier
func (r *ExperimentRepository) GetByID(ctx context.Context, experimentID string) (*domain.ExperimentConfig, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"experiment_id": &types.AttributeValueMemberS{Value: experimentID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	if len(out.Item) == 0 {
		return nil, repository.ErrNotFound
	}

	return r.decode(out.Item)
}

// GetByKey looks the experiment up through the experiment_key global secondary index
func (r *ExperimentRepository) GetByKey(ctx context.Context, experimentKey string) (*domain.ExperimentConfig, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.keyIndex),
		KeyConditionExpression: aws.String("experiment_key = :key"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: experimentKey},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query experiment by key: %w", err)
	}

	if len(out.Items) == 0 {
		return nil, repository.ErrNotFound
	}

	return r.decode(out.Items[0])
}

func (r *ExperimentRepository) decode(item map[string]types.AttributeValue) (*domain.ExperimentConfig, error) {
	var exp domain.ExperimentConfig
	if err := attributevalue.UnmarshalMap(item, &exp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment: %w", err)
	}

	if err := exp.Validate(); err != nil {
		r.log.Error("Rejected invalid experiment configuration",
			zap.String("experiment_id", exp.ID),
			zap.String("experiment_key", exp.Key),
			zap.Error(err))
		return nil, err
	}

	return &exp, nil
}
