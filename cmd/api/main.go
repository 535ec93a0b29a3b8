package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/docs"
	"github.com/amarkanday/experimentation-platform/internal/app"
	"github.com/amarkanday/experimentation-platform/internal/awsclient"
	"github.com/amarkanday/experimentation-platform/internal/bucketing"
	"github.com/amarkanday/experimentation-platform/internal/config"
	"github.com/amarkanday/experimentation-platform/internal/handler"
	"github.com/amarkanday/experimentation-platform/internal/logger"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
	"github.com/amarkanday/experimentation-platform/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title Experimentation Platform Assignment API
// @version 1.0
// @description Sticky variant assignment for online experiments.
// @host localhost:8080
// @BasePath /
// @schemes http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment, "api")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort),
		zap.String("store_backend", cfg.Store.Backend))

	// Configure Swagger host dynamically
	docs.SwaggerInfo.Host = cfg.Service.Host

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
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	assignmentService := service.NewAssignmentService(stores.Experiments, stores.Assignments, bucketing.NewEngine(), m, log)

	h := handler.NewHandler(assignmentService, registry, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("API server starting", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down API server gracefully")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down API server", zap.Error(err))
	}
}
