// Package app собирает сервис остатков: хранилище, транзакции, REST API,
// gRPC health, метрики, outbox и Kafka.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/stockd/internal/health"
	"github.com/vladislavdragonenkov/stockd/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/stockd/internal/metrics"
	"github.com/vladislavdragonenkov/stockd/internal/service/httpapi"
	"github.com/vladislavdragonenkov/stockd/internal/service/outbox"
	"github.com/vladislavdragonenkov/stockd/internal/tracing"
	"github.com/vladislavdragonenkov/stockd/internal/version"
)

// Run запускает сервис и блокируется до отмены ctx или отказа сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.WithFields(buildInfo()).WithField("storage", cfg.StorageDriver).Info("starting inventory service")

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		Insecure:       cfg.OTLPInsecure,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	inventoryMetrics := metrics.NewInventoryMetrics()
	svc := newInventoryService(cfg, deps, inventoryMetrics, logger)
	if err := seedProducts(ctx, cfg, deps.driver, svc, logger); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Kafka необязательна: без брокеров события остатка только логируются.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	workerDone := startOutboxWorker(runCtx, cfg, deps, producer, logger)

	consumer, _ := initKafkaConsumer(cfg, svc, producer, logger)
	if consumer != nil {
		if err := consumer.Start(runCtx); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop kafka consumer")
			}
		}()
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", deps.store.Ping))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker("outbox", deps.outbox.Stats, cfg.OutboxMaxPendingAge))
	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http: %w", err)
	}

	errCh := make(chan error, 2)
	grpcServer, grpcHealth := newGRPCServer(logger)
	serveGRPC(grpcServer, grpcLis, errCh, logger)

	router := httpapi.NewRouter(httpapi.NewHandler(svc, logger.WithField("component", "http")), serviceName)
	httpSrv := serveHTTP(router, httpLis, errCh, logger)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
		runErr = err
	}

	shutdownHTTP(httpSrv, cfg.ShutdownTimeout, logger)
	stopGRPC(grpcServer, grpcHealth, cfg.ShutdownTimeout, logger)
	cancel()
	shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
	<-workerDone

	if errors.Is(runErr, context.Canceled) {
		logger.Info("сервис остановлен")
	}
	return runErr
}

// startOutboxWorker публикует события остатка в Kafka, а без неё пишет их в лог.
func startOutboxWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) <-chan struct{} {
	options := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}

	publisher := newLogPublisher(logger.WithField("component", "stock-events"))
	if producer != nil {
		publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaStockTopic)
		options = append(options, outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)))
	}

	worker := outbox.NewWorker(deps.outbox, publisher, options...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// buildInfo возвращает сведения о сборке для стартового лога.
func buildInfo() log.Fields {
	return log.Fields{
		"version":    version.GetVersion(),
		"commit":     version.GetCommit(),
		"build_date": version.GetDate(),
	}
}
