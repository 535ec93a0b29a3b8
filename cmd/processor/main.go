package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/app"
	"github.com/amarkanday/experimentation-platform/internal/awsclient"
	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/logger"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
	"github.com/amarkanday/experimentation-platform/internal/queue/sqs"
	lambdahandler "github.com/amarkanday/experimentation-platform/internal/transport/lambda"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.ValidatePipeline(); err != nil {
		panic(fmt.Sprintf("Invalid pipeline config: %v", err))
	}

	log, err := logger.New(cfg.Service.Environment, "processor")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	ctx := context.Background()

	awsCfg, err := awsclient.Load(ctx, cfg.AWS, log)
	if err != nil {
		log.Fatal("Failed to load AWS config", zap.Error(err))
	}

	// Clients are created once per execution environment and reused across invocations
	stores, err := app.OpenStores(cfg, awsCfg, log)
	if err != nil {
		log.Fatal("Failed to open stores", zap.Error(err))
	}

	m := metrics.New(prometheus.NewRegistry())

	archiver, _, err := app.OpenArchive(ctx, cfg, awsCfg, m, log)
	if err != nil {
		log.Fatal("Failed to open archive", zap.Error(err))
	}

	var deadLetters *sqs.Client
	if cfg.Pipeline.DLQEnabled {
		deadLetters = sqs.NewClient(awsCfg, cfg.AWS, cfg.SQS, log)
	}

	coordinator, err := app.NewCoordinator(cfg, stores, archiver, deadLetters, m, log)
	if err != nil {
		log.Fatal("Failed to create batch coordinator", zap.Error(err))
	}

	log.Info("Stream processor ready",
		zap.String("environment", cfg.Service.Environment),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Strings("archive_sinks", cfg.Archive.Sinks),
		zap.Bool("dlq_enabled", cfg.Pipeline.DLQEnabled))

	lambda.Start(lambdahandler.NewHandler(coordinator, log).Handle)
}
