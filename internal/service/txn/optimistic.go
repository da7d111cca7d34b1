package txn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/metrics"
	"github.com/vladislavdragonenkov/stockd/internal/retry"
)

// WithOptimisticConcurrency выполняет op без явной транзакции и повторяет её при
// конфликте версий, нарушении уникальности при upsert или пустом совпадении условной записи.
func WithOptimisticConcurrency[T any](ctx context.Context, o *Orchestrator, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	opts = withDefaults(opts, defaultOptimisticPrefix, defaultOptimisticInitDelay)

	start := time.Now()
	defer func() { o.metrics.ObserveDuration(opts.LogPrefix, time.Since(start)) }()

	var result T
	err := retry.Do(ctx, opts.LogPrefix, o.policy(opts), retry.IsTransient, o.hooks(opts.LogPrefix),
		func(ctx context.Context, attempt int) (err error) {
			ctx, span := o.tracer.Start(ctx, opts.LogPrefix, trace.WithAttributes(
				attribute.Int("txn.attempt", attempt),
			))
			defer func() { endSpan(span, err) }()

			out, err := op(ctx)
			if err != nil {
				o.recordAttempt(opts.LogPrefix, err)
				return err
			}
			o.metrics.RecordAttempt(opts.LogPrefix, metrics.ResultCommitted)
			result = out
			return nil
		})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// UpdateWithVersioning читает документ с версией, применяет update и сохраняет
// результат условной записью по версии. Если документа нет, update получает
// нулевое значение и exists=false, а результат вставляется. Проигравший гонку
// перечитывает документ на следующей попытке.
func UpdateWithVersioning[T any](ctx context.Context, o *Orchestrator, opts Options, coll domain.VersionedCollection[T], id string,
	update func(current T, exists bool) (T, error)) (T, error) {
	return WithOptimisticConcurrency(ctx, o, opts, func(ctx context.Context) (T, error) {
		var zero T

		current, version, err := coll.Load(ctx, id)
		switch {
		case domain.IsNotFound(err):
			doc, err := update(zero, false)
			if err != nil {
				return zero, err
			}
			return coll.Insert(ctx, doc)
		case err != nil:
			return zero, err
		}

		doc, err := update(current, true)
		if err != nil {
			return zero, err
		}
		return coll.UpdateIfVersion(ctx, id, version, doc)
	})
}
