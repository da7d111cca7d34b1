package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/stockd/internal/messaging/kafka"
)

const (
	// StorageDriverMemory хранит остатки в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит остатки в PostgreSQL.
	StorageDriverPostgres = "postgres"

	serviceName = "stockd"
)

// Config описывает настройки запуска сервиса остатков.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// TxMaxRetries и TxInitialDelay: повторы транзакций изменения остатка.
	TxMaxRetries   int
	TxInitialDelay time.Duration
	// OCCMaxRetries и OCCInitialDelay: повторы обновлений карточек по версии.
	OCCMaxRetries   int
	OCCInitialDelay time.Duration

	KafkaBrokers      []string
	KafkaGroupID      string
	KafkaOrderTopic   string
	KafkaCatalogTopic string
	KafkaStockTopic   string
	KafkaMaxRetries   int

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	OutboxMaxPendingAge time.Duration

	OTLPEndpoint     string
	OTLPInsecure     bool
	TraceSampleRatio float64

	// Seed: начальные остатки; применяются только к memory-хранилищу.
	Seed []SeedProduct

	ShutdownTimeout time.Duration
}

// SeedProduct — товар и его начальный остаток.
type SeedProduct struct {
	ID       string
	Quantity int64
}

// DefaultConfig возвращает базовые настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		TxMaxRetries:    5,
		TxInitialDelay:  100 * time.Millisecond,
		OCCMaxRetries:   5,
		OCCInitialDelay: 50 * time.Millisecond,

		KafkaGroupID:      "stockd",
		KafkaOrderTopic:   kafka.TopicOrderEvents,
		KafkaCatalogTopic: kafka.TopicCatalogEvents,
		KafkaStockTopic:   kafka.TopicStockEvents,
		KafkaMaxRetries:   3,

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,

		OTLPInsecure:     true,
		TraceSampleRatio: 1,

		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate проверяет согласованность настроек перед запуском.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres dsn is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.TxMaxRetries < 1 || c.OCCMaxRetries < 1 {
		return fmt.Errorf("retry limits must be >= 1")
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaGroupID) == "" {
		return fmt.Errorf("kafka group id is required when brokers are set")
	}
	return nil
}

// ParseSeed разбирает строку вида "p-1:10,p-2:0".
func ParseSeed(raw string) ([]SeedProduct, error) {
	var seeds []SeedProduct
	seen := make(map[string]bool)
	for _, chunk := range strings.Split(raw, ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		id, qtyRaw, ok := strings.Cut(chunk, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("seed %q: expected <id>:<quantity>", chunk)
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(qtyRaw), 10, 64)
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("seed %q: quantity must be a non-negative integer", chunk)
		}
		if seen[id] {
			return nil, fmt.Errorf("seed %q: duplicate product", id)
		}
		seen[id] = true
		seeds = append(seeds, SeedProduct{ID: id, Quantity: qty})
	}
	return seeds, nil
}
