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

// createIfAbsent lets a write replace an item only when none exists or the existing one has expired
// but not yet been swept by TTL.
const createIfAbsent = "attribute_not_exists(user_id) OR expires_at <= :now"

type assignmentItem struct {
	UserID        string                 `dynamodbav:"user_id"`
	ExperimentID  string                 `dynamodbav:"experiment_id"`
	AssignmentID  string                 `dynamodbav:"assignment_id"`
	ExperimentKey string                 `dynamodbav:"experiment_key"`
	Variant       string                 `dynamodbav:"variant"`
	Timestamp     string                 `dynamodbav:"timestamp"`
	Context       map[string]interface{} `dynamodbav:"context,omitempty"`
	ExpiresAt     int64                  `dynamodbav:"expires_at"`
}

// AssignmentRepository implements repository.AssignmentRepository on a DynamoDB table keyed by
// (user_id, experiment_id) with TTL on expires_at
type AssignmentRepository struct {
	client API
	table  string
	now    func() time.Time
	log    *zap.Logger
}

// NewAssignmentRepository creates a new DynamoDB assignment repository
func NewAssignmentRepository(client API, table string, log *zap.Logger) *AssignmentRepository {
	return &AssignmentRepository{
		client: client,
		table:  table,
		now:    time.Now,
		log:    log,
	}
}

// Get returns the live assignment for the user and experiment
func (r *AssignmentRepository) Get(ctx context.Context, userID, experimentID string) (*domain.Assignment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            assignmentKey(userID, experimentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	if len(out.Item) == 0 {
		return nil, repository.ErrNotFound
	}

	var item assignmentItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
	}

	assignment, err := item.toDomain()
	if err != nil {
		return nil, err
	}

	// TTL deletion is lazy, so expired items can still be returned by the table
	if assignment.IsExpired(r.now()) {
		r.log.Debug("Ignoring expired assignment",
			zap.String("user_id", userID),
			zap.String("experiment_id", experimentID))
		return nil, repository.ErrNotFound
	}

	return assignment, nil
}

// Create stores the assignment only if no live assignment exists for the same key
func (r *AssignmentRepository) Create(ctx context.Context, assignment *domain.Assignment) error {
	item, err := attributevalue.MarshalMap(fromDomain(assignment))
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String(createIfAbsent),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().Unix(), 10)},
		},
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to put assignment: %w", err)
	}

	return nil
}

func assignmentKey(userID, experimentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":       &types.AttributeValueMemberS{Value: userID},
		"experiment_id": &types.AttributeValueMemberS{Value: experimentID},
	}
}

func fromDomain(a *domain.Assignment) assignmentItem {
	return assignmentItem{
		UserID:        a.UserID,
		ExperimentID:  a.ExperimentID,
		AssignmentID:  a.ID,
		ExperimentKey: a.ExperimentKey,
		Variant:       a.Variant,
		Timestamp:     a.CreatedAt.UTC().Format(time.RFC3339Nano),
		Context:       a.Context,
		ExpiresAt:     a.ExpiresAt.Unix(),
	}
}

func (i assignmentItem) toDomain() (*domain.Assignment, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, i.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse assignment timestamp %q: %w", i.Timestamp, err)
	}

	return &domain.Assignment{
		ID:            i.AssignmentID,
		UserID:        i.UserID,
		ExperimentID:  i.ExperimentID,
		ExperimentKey: i.ExperimentKey,
		Variant:       i.Variant,
		CreatedAt:     createdAt,
		Context:       i.Context,
		ExpiresAt:     time.Unix(i.ExpiresAt, 0).UTC(),
	}, nil
}
