package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты попытки транзакции.
const (
	ResultCommitted = "committed"
	ResultConflict  = "conflict"
	ResultFailed    = "failed"
)

// InventoryMetrics содержит метрики транзакций и движений остатка.
type InventoryMetrics struct {
	txAttempts  *prometheus.CounterVec
	txRetries   *prometheus.CounterVec
	txExhausted *prometheus.CounterVec
	txDuration  *prometheus.HistogramVec

	stockMovements    *prometheus.CounterVec
	stockUnits        *prometheus.CounterVec
	insufficientStock prometheus.Counter
	outboxEnqueued    prometheus.Counter
}

// NewInventoryMetrics регистрирует метрики в DefaultRegisterer.
func NewInventoryMetrics() *InventoryMetrics {
	return NewInventoryMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewInventoryMetricsWithRegisterer регистрирует метрики в заданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewInventoryMetricsWithRegisterer(registerer prometheus.Registerer) *InventoryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &InventoryMetrics{
		txAttempts: registerCollector(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockd_tx_attempts_total",
			Help: "Transaction attempts grouped by operation and result",
		}, []string{"operation", "result"})),
		txRetries: registerCollector(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockd_tx_retries_total",
			Help: "Transaction retries caused by transient errors",
		}, []string{"operation"})),
		txExhausted: registerCollector(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockd_tx_retry_exhausted_total",
			Help: "Operations that ran out of retry attempts",
		}, []string{"operation"})),
		txDuration: registerCollector(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockd_tx_duration_seconds",
			Help:    "Duration of a transactional operation including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"operation"})),
		stockMovements: registerCollector(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockd_stock_movements_total",
			Help: "Ledger entries written grouped by kind and movement type",
		}, []string{"kind", "type"})),
		stockUnits: registerCollector(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockd_stock_units_total",
			Help: "Units moved grouped by ledger entry kind",
		}, []string{"kind"})),
		insufficientStock: registerCollector(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockd_insufficient_stock_total",
			Help: "Rejected operations that would drive stock below zero",
		})),
		outboxEnqueued: registerCollector(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockd_outbox_enqueued_total",
			Help: "Stock events written to the transactional outbox",
		})),
	}
}

// registerCollector регистрирует коллектор или возвращает ранее зарегистрированный того же типа.
func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", already.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordAttempt учитывает одну попытку транзакции.
func (m *InventoryMetrics) RecordAttempt(operation, result string) {
	if m == nil {
		return
	}
	m.txAttempts.WithLabelValues(operation, result).Inc()
}

// RecordRetry учитывает повтор после временной ошибки.
func (m *InventoryMetrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation).Inc()
}

// RecordExhausted учитывает исчерпание попыток.
func (m *InventoryMetrics) RecordExhausted(operation string) {
	if m == nil {
		return
	}
	m.txExhausted.WithLabelValues(operation).Inc()
}

// ObserveDuration записывает полное время операции с учётом повторов.
func (m *InventoryMetrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordMovement учитывает записанную запись журнала.
func (m *InventoryMetrics) RecordMovement(kind, movementType string, units int64) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(kind, movementType).Inc()
	m.stockUnits.WithLabelValues(kind).Add(float64(units))
}

// RecordInsufficientStock учитывает отказ из-за нехватки остатка.
func (m *InventoryMetrics) RecordInsufficientStock() {
	if m == nil {
		return
	}
	m.insufficientStock.Inc()
}

// RecordOutboxEnqueued учитывает событие, записанное в outbox.
func (m *InventoryMetrics) RecordOutboxEnqueued() {
	if m == nil {
		return
	}
	m.outboxEnqueued.Inc()
}
