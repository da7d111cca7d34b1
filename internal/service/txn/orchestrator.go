// Package txn выполняет операции над хранилищем в транзакции или под
// оптимистичной блокировкой и повторяет их при временных конфликтах.
package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/metrics"
	"github.com/vladislavdragonenkov/stockd/internal/retry"
)

const (
	tracerName = "github.com/vladislavdragonenkov/stockd/internal/service/txn"

	defaultMaxRetries          = 5
	defaultTxInitialDelay      = 100 * time.Millisecond
	defaultOptimisticInitDelay = 50 * time.Millisecond
	defaultTxPrefix            = "transaction"
	defaultOptimisticPrefix    = "optimistic update"
)

// Options задаёт параметры повторов одной операции.
type Options struct {
	// MaxRetries: общее число попыток, включая первую.
	MaxRetries int
	// LogPrefix: имя операции в логах, метриках, спанах и тексте ошибки.
	LogPrefix    string
	InitialDelay time.Duration
	TxOptions    domain.TxOptions
}

// Orchestrator открывает транзакции через TxRunner и повторяет их при временных ошибках.
type Orchestrator struct {
	runner   domain.TxRunner
	logger   *log.Entry
	metrics  *metrics.InventoryMetrics
	tracer   trace.Tracer
	rand     func() float64
	maxDelay time.Duration
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics задаёт метрики транзакций.
func WithMetrics(m *metrics.InventoryMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer задаёт tracer для спанов попыток.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithRand подменяет источник джиттера (нужно в тестах).
func WithRand(fn func() float64) Option {
	return func(o *Orchestrator) {
		o.rand = fn
	}
}

// WithMaxDelay ограничивает задержку между попытками.
func WithMaxDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.maxDelay = d
	}
}

// NewOrchestrator создаёт оркестратор транзакций.
func NewOrchestrator(runner domain.TxRunner, options ...Option) *Orchestrator {
	o := &Orchestrator{runner: runner}
	for _, option := range options {
		option(o)
	}
	if o.logger == nil {
		o.logger = log.WithField("component", "txn")
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.maxDelay <= 0 {
		o.maxDelay = retry.DefaultMaxDelay
	}
	return o
}

// WithTransaction выполняет op в транзакции с snapshot isolation.
// Транзакция фиксируется при успехе и откатывается при любой ошибке или панике.
// Временные ошибки (конфликт записи, serialization failure, deadlock) приводят
// к повтору всей функции на свежем снимке.
func WithTransaction[T any](ctx context.Context, o *Orchestrator, opts Options, op func(ctx context.Context, tx domain.Tx) (T, error)) (T, error) {
	opts = withDefaults(opts, defaultTxPrefix, defaultTxInitialDelay)
	if opts.TxOptions == (domain.TxOptions{}) {
		opts.TxOptions = domain.DefaultTxOptions()
	}

	start := time.Now()
	defer func() { o.metrics.ObserveDuration(opts.LogPrefix, time.Since(start)) }()

	var result T
	err := retry.Do(ctx, opts.LogPrefix, o.policy(opts), retry.IsTransient, o.hooks(opts.LogPrefix),
		func(ctx context.Context, attempt int) error {
			out, err := runTransaction(ctx, o, opts, attempt, op)
			if err != nil {
				return err
			}
			result = out
			return nil
		})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func runTransaction[T any](ctx context.Context, o *Orchestrator, opts Options, attempt int, op func(ctx context.Context, tx domain.Tx) (T, error)) (_ T, err error) {
	var zero T

	ctx, span := o.tracer.Start(ctx, opts.LogPrefix, trace.WithAttributes(
		attribute.Int("txn.attempt", attempt),
		attribute.String("txn.isolation", string(opts.TxOptions.Isolation)),
	))
	defer func() {
		endSpan(span, err)
	}()

	tx, err := o.runner.Begin(ctx, opts.TxOptions)
	if err != nil {
		o.recordAttempt(opts.LogPrefix, err)
		return zero, fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, domain.ErrTxClosed) {
			o.logger.WithError(rbErr).WithField("operation", opts.LogPrefix).Warn("rollback failed")
		}
	}()

	out, err := op(ctx, tx)
	if err != nil {
		o.recordAttempt(opts.LogPrefix, err)
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		o.recordAttempt(opts.LogPrefix, err)
		return zero, fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	o.metrics.RecordAttempt(opts.LogPrefix, metrics.ResultCommitted)

	return out, nil
}

func (o *Orchestrator) policy(opts Options) retry.Policy {
	return retry.Policy{
		MaxAttempts:  opts.MaxRetries,
		InitialDelay: opts.InitialDelay,
		MaxDelay:     o.maxDelay,
		Rand:         o.rand,
	}
}

func (o *Orchestrator) hooks(operation string) retry.Hooks {
	return retry.Hooks{
		OnRetry: func(attempt int, err error, delay time.Duration) {
			o.metrics.RecordRetry(operation)
			o.logger.WithError(err).WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
			}).Warn("transient error, retrying")
		},
		OnExhausted: func(attempts int, err error) {
			o.metrics.RecordExhausted(operation)
			o.logger.WithError(err).WithFields(log.Fields{
				"operation":    operation,
				"max_attempts": attempts,
			}).Error("operation failed after all retry attempts")
		},
	}
}

func (o *Orchestrator) recordAttempt(operation string, err error) {
	result := metrics.ResultFailed
	if retry.IsTransient(err) {
		result = metrics.ResultConflict
	}
	o.metrics.RecordAttempt(operation, result)
}

func withDefaults(opts Options, prefix string, delay time.Duration) Options {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.LogPrefix == "" {
		opts.LogPrefix = prefix
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = delay
	}
	return opts
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
