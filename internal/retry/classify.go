package retry

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

// SQLSTATE-коды, после которых транзакцию можно повторить целиком.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateQueryCanceled        = "57014"
)

type sqlStater interface {
	SQLState() string
}

type retryable interface {
	Retryable() bool
}

// IsTransient сообщает, имеет ли смысл повторить операцию после err.
// Бизнес-ошибки и отмена контекста не повторяются; неизвестные ошибки тоже.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if domain.IsValidation(err) || domain.IsNotFound(err) || domain.IsInsufficientStock(err) {
		return false
	}
	if domain.IsRetryExhausted(err) {
		return false
	}
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		return true
	}

	var state sqlStater
	if errors.As(err, &state) {
		switch state.SQLState() {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected,
			sqlStateLockNotAvailable, sqlStateQueryCanceled:
			return true
		}
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	return false
}
