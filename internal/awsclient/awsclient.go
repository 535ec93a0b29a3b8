// Package awsclient loads the shared AWS configuration used by every AWS-backed adapter.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.uber.org/zap"

	envConfig "github.com/amarkanday/experimentation-platform/internal/config"
)

// Load builds the AWS configuration. When an endpoint override is configured (LocalStack, ElasticMQ,
// dynamodb-local) static dummy credentials are used.
func Load(ctx context.Context, awsConfig envConfig.AWS, log *zap.Logger) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(awsConfig.Region),
	}

	if awsConfig.Endpoint != "" {
		log.Info("Configuring AWS clients for local development",
			zap.String("endpoint", awsConfig.Endpoint))
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}

// BaseEndpoint returns the endpoint override, or nil to use the SDK's resolver
func BaseEndpoint(awsConfig envConfig.AWS) *string {
	if awsConfig.Endpoint == "" {
		return nil
	}
	return aws.String(awsConfig.Endpoint)
}
