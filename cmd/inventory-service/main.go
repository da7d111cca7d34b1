package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/app"
)

const (
	envLogLevel = "STOCKD_LOG_LEVEL"

	envHTTPAddr    = "STOCKD_HTTP_ADDR"
	envGRPCAddr    = "STOCKD_GRPC_ADDR"
	envMetricsAddr = "STOCKD_METRICS_ADDR"

	envStorageDriver       = "STOCKD_STORAGE_DRIVER"
	envPostgresDSN         = "STOCKD_POSTGRES_DSN"
	envPostgresAutoMigrate = "STOCKD_POSTGRES_AUTO_MIGRATE"

	envTxMaxRetries    = "STOCKD_TX_MAX_RETRIES"
	envTxInitialDelay  = "STOCKD_TX_INITIAL_DELAY"
	envOCCMaxRetries   = "STOCKD_OCC_MAX_RETRIES"
	envOCCInitialDelay = "STOCKD_OCC_INITIAL_DELAY"

	envKafkaBrokers      = "STOCKD_KAFKA_BROKERS"
	envKafkaGroupID      = "STOCKD_KAFKA_GROUP_ID"
	envKafkaOrderTopic   = "STOCKD_KAFKA_ORDER_TOPIC"
	envKafkaCatalogTopic = "STOCKD_KAFKA_CATALOG_TOPIC"
	envKafkaStockTopic   = "STOCKD_KAFKA_STOCK_TOPIC"
	envKafkaMaxRetries   = "STOCKD_KAFKA_MAX_RETRIES"

	envOutboxPollInterval  = "STOCKD_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "STOCKD_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "STOCKD_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "STOCKD_OUTBOX_RETRY_DELAY"
	envOutboxMaxPendingAge = "STOCKD_OUTBOX_MAX_PENDING_AGE"

	envOTLPEndpoint     = "STOCKD_OTLP_ENDPOINT"
	envOTLPInsecure     = "STOCKD_OTLP_INSECURE"
	envTraceSampleRatio = "STOCKD_TRACE_SAMPLE_RATIO"

	envSeed            = "STOCKD_SEED"
	envShutdownTimeout = "STOCKD_SHUTDOWN_TIMEOUT"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(envLogLevel); ok {
		if level, err := log.ParseLevel(strings.TrimSpace(raw)); err == nil {
			log.SetLevel(level)
		}
	}
}

func positiveInt(v int) bool { return v > 0 }
func nonNegativeDuration(v time.Duration) bool { return v >= 0 }
func positiveDuration(v time.Duration) bool { return v > 0 }

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не применяются, а возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	str := func(key string, dst *string) {
		if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
			*dst = strings.TrimSpace(raw)
		}
	}
	integer := func(key string, dst *int) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseInt(raw, positiveInt, "must be > 0")
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = value
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseDuration(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = value
	}
	boolean := func(key string, dst *bool) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseBool(raw)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = value
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)

	if raw, ok := lookup(envStorageDriver); ok && strings.TrimSpace(raw) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(raw))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	integer(envTxMaxRetries, &cfg.TxMaxRetries)
	duration(envTxInitialDelay, &cfg.TxInitialDelay, nonNegativeDuration, "must be >= 0")
	integer(envOCCMaxRetries, &cfg.OCCMaxRetries)
	duration(envOCCInitialDelay, &cfg.OCCInitialDelay, nonNegativeDuration, "must be >= 0")

	if raw, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = app.ParseBrokers(raw)
	}
	str(envKafkaGroupID, &cfg.KafkaGroupID)
	str(envKafkaOrderTopic, &cfg.KafkaOrderTopic)
	str(envKafkaCatalogTopic, &cfg.KafkaCatalogTopic)
	str(envKafkaStockTopic, &cfg.KafkaStockTopic)
	integer(envKafkaMaxRetries, &cfg.KafkaMaxRetries)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize)
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	duration(envOutboxMaxPendingAge, &cfg.OutboxMaxPendingAge, nonNegativeDuration, "must be >= 0")

	str(envOTLPEndpoint, &cfg.OTLPEndpoint)
	boolean(envOTLPInsecure, &cfg.OTLPInsecure)
	if raw, ok := lookup(envTraceSampleRatio); ok {
		ratio, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		switch {
		case err != nil:
			warn(envTraceSampleRatio, raw, err)
		case ratio < 0 || ratio > 1:
			warn(envTraceSampleRatio, raw, errors.New("must be within [0, 1]"))
		default:
			cfg.TraceSampleRatio = ratio
		}
	}

	if raw, ok := lookup(envSeed); ok {
		seed, err := app.ParseSeed(raw)
		if err != nil {
			warn(envSeed, raw, err)
		} else {
			cfg.Seed = seed
		}
	}
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func main() {
	// .env необязателен
	_ = godotenv.Load()

	setupLogger(os.LookupEnv)
	gin.SetMode(gin.ReleaseMode)

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_brokers":  cfg.KafkaBrokers,
	}).Info("запускаем сервис остатков")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("сервис остатков остановлен")
}
