package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	envConfig "github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/awsclient"
	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// S3API is the subset of the S3 client used by the archive
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes each batch as one gzip-compressed NDJSON object under a date-partitioned key
type S3Sink struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
	newID  func() string
	log    *zap.Logger
}

// NewS3Sink creates an S3 sink from the shared AWS configuration
func NewS3Sink(awsCfg aws.Config, awsConfig envConfig.AWS, s3Config envConfig.S3, log *zap.Logger) *S3Sink {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = awsclient.BaseEndpoint(awsConfig)
		o.UsePathStyle = awsConfig.Endpoint != ""
	})

	log.Info("S3 archive sink created",
		zap.String("bucket", s3Config.Bucket),
		zap.String("prefix", s3Config.Prefix))

	return NewS3SinkWithAPI(client, s3Config, log)
}

// NewS3SinkWithAPI wraps an existing S3 API implementation
func NewS3SinkWithAPI(client S3API, s3Config envConfig.S3, log *zap.Logger) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: s3Config.Bucket,
		prefix: s3Config.Prefix,
		now:    time.Now,
		newID:  uuid.NewString,
		log:    log,
	}
}

// Name identifies the sink in logs and metrics
func (s *S3Sink) Name() string {
	return envConfig.ArchiveSinkS3
}

// Write uploads the events as a single object
func (s *S3Sink) Write(ctx context.Context, events []domain.EnrichedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	body, err := encodeNDJSON(events)
	if err != nil {
		return 0, err
	}

	key := ObjectKey(s.prefix, s.now(), s.newID())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put archive object %s: %w", key, err)
	}

	s.log.Debug("Archived batch to S3",
		zap.String("key", key),
		zap.Int("event_count", len(events)),
		zap.Int("bytes", len(body)))

	return len(events), nil
}

// ObjectKey builds <prefix>/year=YYYY/month=MM/day=DD/<unix-nanos>-<id>.jsonl.gz in UTC
func ObjectKey(prefix string, at time.Time, id string) string {
	at = at.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("year=%04d", at.Year()),
		fmt.Sprintf("month=%02d", int(at.Month())),
		fmt.Sprintf("day=%02d", at.Day()),
		fmt.Sprintf("%d-%s.jsonl.gz", at.UnixNano(), id),
	)
}

func encodeNDJSON(events []domain.EnrichedEvent) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gz)

	for i := range events {
		if err := encoder.Encode(&events[i]); err != nil {
			return nil, fmt.Errorf("failed to encode event %s: %w", events[i].EventID, err)
		}
	}

	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress archive batch: %w", err)
	}

	return buf.Bytes(), nil
}
