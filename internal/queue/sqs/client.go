package sqs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	envConfig "github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/awsclient"
	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// maxBatchEntries is the SQS limit for SendMessageBatch
const maxBatchEntries = 10

// API is the subset of the SQS client used here
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Client represents an SQS client bound to the event queue and the dead-letter queue
type Client struct {
	client   API
	queueURL string
	dlqURL   string
	log      *zap.Logger
}

// NewClient creates a new SQS client
func NewClient(awsCfg aws.Config, awsConfig envConfig.AWS, sqsConfig envConfig.SQS, log *zap.Logger) *Client {
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = awsclient.BaseEndpoint(awsConfig)
	})

	log.Info("SQS client created",
		zap.String("region", awsCfg.Region),
		zap.String("queue_url", sqsConfig.QueueURL),
		zap.String("dlq_url", sqsConfig.DLQURL))

	return NewClientWithAPI(sqsClient, sqsConfig, log)
}

// NewClientWithAPI wraps an existing SQS API implementation
func NewClientWithAPI(api API, sqsConfig envConfig.SQS, log *zap.Logger) *Client {
	return &Client{
		client:   api,
		queueURL: sqsConfig.QueueURL,
		dlqURL:   sqsConfig.DLQURL,
		log:      log,
	}
}

// ReceiveMessages receives messages from SQS
func (c *Client) ReceiveMessages(ctx context.Context, input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
	return c.client.ReceiveMessage(ctx, input)
}

// DeleteMessage deletes a message from SQS
func (c *Client) DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
	return c.client.DeleteMessage(ctx, input)
}

// QueueURL returns the configured event queue URL
func (c *Client) QueueURL() string {
	return c.queueURL
}

// PublishDeadLetters sends dead letters to the DLQ in batches of ten. Entries rejected by SQS are logged
// and excluded from the returned count; the first transport error aborts the remaining chunks.
func (c *Client) PublishDeadLetters(ctx context.Context, letters []domain.DeadLetter) (int, error) {
	if len(letters) == 0 {
		return 0, nil
	}

	sent := 0
	for start := 0; start < len(letters); start += maxBatchEntries {
		end := start + maxBatchEntries
		if end > len(letters) {
			end = len(letters)
		}

		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, letter := range letters[start:end] {
			body, err := json.Marshal(letter)
			if err != nil {
				return sent, fmt.Errorf("failed to marshal dead letter: %w", err)
			}

			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(start + i)),
				MessageBody: aws.String(string(body)),
				MessageAttributes: map[string]types.MessageAttributeValue{
					"ErrorKind": {
						DataType:    aws.String("String"),
						StringValue: aws.String(letter.Kind),
					},
				},
			})
		}

		out, err := c.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(c.dlqURL),
			Entries:  entries,
		})
		if err != nil {
			c.log.Error("Failed to send dead letters to SQS",
				zap.Int("entry_count", len(entries)),
				zap.Error(err))
			return sent, fmt.Errorf("failed to send dead letters to SQS: %w", err)
		}

		for _, failed := range out.Failed {
			c.log.Warn("Dead letter rejected by SQS",
				zap.String("entry_id", aws.ToString(failed.Id)),
				zap.String("code", aws.ToString(failed.Code)),
				zap.String("message", aws.ToString(failed.Message)))
		}
		sent += len(out.Successful)
	}

	c.log.Info("Dead letters published to SQS",
		zap.Int("sent", sent),
		zap.Int("total", len(letters)))

	return sent, nil
}
