package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/realty-ai-agent/cmd/mainconfig"
	"github.com/wolfman30/realty-ai-agent/internal/api/router"
	"github.com/wolfman30/realty-ai-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/compliance"
	"github.com/wolfman30/realty-ai-agent/internal/observability/metrics"
	"github.com/wolfman30/realty-ai-agent/internal/worker"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting realty-ai-agent",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("agent exited", "error", err)
		os.Exit(1)
	}
	logger.Info("agent stopped")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	pool, db, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		defer func() { _ = db.Close() }()
	}

	registry, metricsHandler := setupMetrics()
	agentMetrics := metrics.NewAgentMetrics(registry)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	var bedrock *bedrockruntime.Client
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		bedrock = mainconfig.BedrockClient(awsCfg)
	}

	app, err := bootstrap.BuildAgent(ctx, cfg, bootstrap.Deps{
		Redis:   redisClient,
		Pool:    pool,
		DB:      db,
		Bedrock: bedrock,
		Metrics: agentMetrics,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("agent close", "error", err)
		}
	}()

	queue := buildQueue(cfg, func() worker.Queue {
		return worker.NewSQSQueue(mainconfig.SQSClient(awsCfg, cfg), cfg.InboundQueueURL)
	}, logger)

	quiet, err := compliance.ParseQuietHours(cfg.QuietHoursStart, cfg.QuietHoursEnd, cfg.QuietHoursTimezone)
	if err != nil {
		return err
	}
	w := worker.NewWorker(app.Service, queue, app.Gateway, logger,
		worker.WithWorkerCount(cfg.WorkerCount),
		worker.WithQuietHours(quiet),
		worker.WithSendChecker(app.Checker),
		worker.WithHandoffAlerts(cfg.HandoffAlertEmail),
	)
	w.Start(ctx)

	handler := router.New(&router.Config{
		Logger:               logger,
		Conversations:        app.Service,
		Publisher:            worker.NewPublisher(queue),
		MetricsHandler:       metricsHandler,
		ReadinessChecks:      readinessChecks(redisClient, pool),
		OperatorSecret:       cfg.OperatorJWTSecret,
		OperatorAudience:     cfg.OperatorJWTAudience,
		AllowUnauthenticated: cfg.AllowUnauthenticated,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		RateLimitPerSecond:   cfg.APIRateLimit,
		RateLimitBurst:       cfg.APIRateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			cancel()
			w.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("workers stopped")
	case <-shutdownCtx.Done():
		logger.Error("worker shutdown timed out", "error", shutdownCtx.Err())
	}
	return nil
}

// buildQueue falls back to the in-process queue when SQS is not configured.
func buildQueue(cfg *appconfig.Config, sqsQueue func() worker.Queue, logger *logging.Logger) worker.Queue {
	if cfg.UseMemoryQueue || strings.TrimSpace(cfg.InboundQueueURL) == "" {
		if !cfg.UseMemoryQueue {
			logger.Warn("INBOUND_QUEUE_URL not set; using in-memory queue")
		}
		return worker.NewMemoryQueue(0)
	}
	return sqsQueue()
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func readinessChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}
