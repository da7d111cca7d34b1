package retry

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

// Classifier решает, повторять ли операцию после ошибки.
type Classifier func(error) bool

// Hooks позволяют наблюдать за ходом повторов.
type Hooks struct {
	// OnRetry вызывается перед ожиданием очередной попытки.
	OnRetry func(attempt int, err error, delay time.Duration)
	// OnExhausted вызывается, когда временные ошибки исчерпали все попытки.
	OnExhausted func(attempts int, err error)
}

// Do выполняет op до успеха, нетранзиентной ошибки или исчерпания попыток.
// Номер попытки передаётся в op, начиная с 1. Отмена ctx прерывает ожидание
// и возвращает ошибку контекста.
// Если последняя попытка завершилась временной ошибкой, возвращается *domain.RetryExhaustedError.
func Do(ctx context.Context, name string, policy Policy, classify Classifier, hooks Hooks, op func(ctx context.Context, attempt int) error) error {
	if classify == nil {
		classify = IsTransient
	}

	maxAttempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if !classify(err) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := policy.Backoff(attempt)
		if hooks.OnRetry != nil {
			hooks.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	if hooks.OnExhausted != nil {
		hooks.OnExhausted(maxAttempts, lastErr)
	}
	return &domain.RetryExhaustedError{Operation: name, Attempts: maxAttempts, Last: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
