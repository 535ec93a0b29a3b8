package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/app"
	"github.com/amarkanday/experimentation-platform/internal/awsclient"
	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/consumer"
	"github.com/amarkanday/experimentation-platform/internal/logger"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
	"github.com/amarkanday/experimentation-platform/internal/queue/sqs"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.ValidatePipeline(); err != nil {
		panic(fmt.Sprintf("Invalid pipeline config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, "consumer")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	log.Info("Starting consumer service",
		zap.String("environment", cfg.Service.Environment),
		zap.Strings("archive_sinks", cfg.Archive.Sinks))

	if cfg.SQS.QueueURL == "" {
		log.Fatal("SQS_QUEUE_URL is required for the consumer")
	}

	ctx := context.Background()

	awsCfg, err := awsclient.Load(ctx, cfg.AWS, log)
	if err != nil {
		log.Fatal("Failed to load AWS config", zap.Error(err))
	}

	stores, err := app.OpenStores(cfg, awsCfg, log)
	if err != nil {
		log.Fatal("Failed to open stores", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Failed to close stores", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	archiver, closeArchive, err := app.OpenArchive(ctx, cfg, awsCfg, m, log)
	if err != nil {
		log.Fatal("Failed to open archive", zap.Error(err))
	}
	defer closeArchive()

	// The source queue client also publishes dead letters when a DLQ URL is configured
	sqsClient := sqs.NewClient(awsCfg, cfg.AWS, cfg.SQS, log)

	coordinator, err := app.NewCoordinator(cfg, stores, archiver, sqsClient, m, log)
	if err != nil {
		log.Fatal("Failed to create batch coordinator", zap.Error(err))
	}

	c := consumer.NewConsumer(cfg.Consumer, sqsClient, coordinator, log)

	// Start health check and metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := stores.Ping(r.Context()); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		addr := ":" + cfg.Consumer.HealthCheckPort
		log.Info("Health check server starting", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Health check server error", zap.Error(err))
		}
	}()

	// Start consumer
	consumerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("Consumer starting")

	go func() {
		if err := c.Start(consumerCtx); err != nil {
			log.Fatal("Consumer error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down consumer gracefully")
	cancel()
}
