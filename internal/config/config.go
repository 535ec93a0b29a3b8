package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Service    Service    `envconfig:"SERVICE"`
	AWS        AWS        `envconfig:"AWS"`
	DynamoDB   DynamoDB   `envconfig:"DYNAMODB"`
	SQS        SQS        `envconfig:"SQS"`
	S3         S3         `envconfig:"S3"`
	ClickHouse ClickHouse `envconfig:"CLICKHOUSE"`
	Consumer   Consumer   `envconfig:"CONSUMER"`
	Pipeline   Pipeline   `envconfig:"PIPELINE"`
	Store      Store      `envconfig:"STORE"`
	Archive    Archive    `envconfig:"ARCHIVE"`
}

type Service struct {
	Environment string `envconfig:"ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"API_PORT" default:"8080"`
	Host        string `envconfig:"HOST" default:"localhost:8080"`
}

type AWS struct {
	Region   string `envconfig:"REGION" default:"eu-central-1"`
	Endpoint string `envconfig:"ENDPOINT"`
}

type DynamoDB struct {
	AssignmentsTable   string `envconfig:"ASSIGNMENTS_TABLE" default:"experiment-assignments"`
	ExperimentsTable   string `envconfig:"EXPERIMENTS_TABLE" default:"experiments"`
	ExperimentKeyIndex string `envconfig:"EXPERIMENT_KEY_INDEX" default:"experiment_key-index"`
	AggregationsTable  string `envconfig:"AGGREGATIONS_TABLE" default:"experiment-aggregations"`
}

type SQS struct {
	QueueURL string `envconfig:"QUEUE_URL"`
	DLQURL   string `envconfig:"DLQ_URL"`
}

type S3 struct {
	Bucket string `envconfig:"BUCKET"`
	Prefix string `envconfig:"PREFIX" default:"events"`
}

type ClickHouse struct {
	Host            string `envconfig:"HOST"`
	Port            string `envconfig:"PORT" default:"9000"`
	Database        string `envconfig:"DB" default:"default"`
	User            string `envconfig:"USER" default:""`
	Password        string `envconfig:"PASSWORD" default:""`
	MaxOpenConns    int    `envconfig:"MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CONN_MAX_LIFETIME_SEC" default:"3600"`
	UseTLS          bool   `envconfig:"USE_TLS" default:"false"`
}

type Consumer struct {
	MaxMessages     int32  `envconfig:"MAX_MESSAGES" default:"10"`
	WaitTimeSeconds int32  `envconfig:"WAIT_TIME_SEC" default:"20"`
	HealthCheckPort string `envconfig:"HEALTH_CHECK_PORT" default:"8081"`
}

type Pipeline struct {
	DLQEnabled          bool          `envconfig:"DLQ_ENABLED" default:"true"`
	DetectDuplicates    bool          `envconfig:"DETECT_DUPLICATES" default:"true"`
	Window              string        `envconfig:"WINDOW" default:"hourly"`
	StoreTimeout        time.Duration `envconfig:"STORE_TIMEOUT" default:"2s"`
	BatchTimeout        time.Duration `envconfig:"BATCH_TIMEOUT" default:"60s"`
	MaxConflictAttempts int           `envconfig:"MAX_CONFLICT_ATTEMPTS" default:"3"`
}

type Store struct {
	Backend   string `envconfig:"BACKEND" default:"dynamodb"`
	BadgerDir string `envconfig:"BADGER_DIR" default:"./data/badger"`
	SeedFile  string `envconfig:"SEED_FILE"`
}

type Archive struct {
	Sinks                   []string      `envconfig:"SINKS" default:"s3"`
	BreakerFailureThreshold uint32        `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerTimeout          time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

const (
	StoreBackendDynamoDB = "dynamodb"
	StoreBackendBadger   = "badger"

	ArchiveSinkS3         = "s3"
	ArchiveSinkClickHouse = "clickhouse"
)

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Service.Environment == "" {
		return fmt.Errorf("SERVICE_ENVIRONMENT must not be empty")
	}

	switch c.Store.Backend {
	case StoreBackendDynamoDB, StoreBackendBadger:
	default:
		return fmt.Errorf("unsupported store backend: %s (supported: dynamodb, badger)", c.Store.Backend)
	}

	return nil
}

// ValidatePipeline checks the settings needed only by binaries that run the event pipeline
func (c *Config) ValidatePipeline() error {
	for _, sink := range c.Archive.Sinks {
		switch strings.TrimSpace(sink) {
		case ArchiveSinkS3:
			if c.S3.Bucket == "" {
				return fmt.Errorf("S3_BUCKET is required when the s3 archive sink is enabled")
			}
		case ArchiveSinkClickHouse:
			if c.ClickHouse.Host == "" {
				return fmt.Errorf("CLICKHOUSE_HOST is required when the clickhouse archive sink is enabled")
			}
		case "":
		default:
			return fmt.Errorf("unsupported archive sink: %s (supported: s3, clickhouse)", sink)
		}
	}

	if c.Pipeline.DLQEnabled && c.SQS.DLQURL == "" {
		return fmt.Errorf("SQS_DLQ_URL is required when PIPELINE_DLQ_ENABLED is true")
	}

	if c.Pipeline.MaxConflictAttempts < 1 {
		return fmt.Errorf("PIPELINE_MAX_CONFLICT_ATTEMPTS must be at least 1")
	}

	return nil
}

// HasArchiveSink reports whether the named archive sink is enabled
func (c *Config) HasArchiveSink(name string) bool {
	for _, sink := range c.Archive.Sinks {
		if strings.TrimSpace(sink) == name {
			return true
		}
	}
	return false
}
