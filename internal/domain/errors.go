package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict сигнализирует, что условная запись не нашла ожидаемого состояния
	// (остаток или версия изменились между чтением и записью). Ошибка временная.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrTxClosed возвращается при обращении к уже завершённой транзакции.
	ErrTxClosed = errors.New("transaction already closed")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError описывает некорректный входной параметр.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError возвращается, когда сущность не найдена в хранилище.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ProductNotFound создаёт NotFoundError для товара.
func ProductNotFound(id string) *NotFoundError {
	return &NotFoundError{Entity: "product", ID: id}
}

// InsufficientStockError — операция опустила бы остаток ниже нуля.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// RetryExhaustedError возвращается, когда все попытки исчерпаны на временных ошибках.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *RetryExhaustedError) Error() string {
	op := e.Operation
	if op == "" {
		op = "transaction"
	}
	return fmt.Sprintf("%s failed after %d attempts: %v", op, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// AdjustmentError сопровождает неудачную административную корректировку
// значениями остатка до и после попытки.
type AdjustmentError struct {
	ProductID         string
	PreviousQuantity  int64
	AttemptedQuantity int64
	Err               error
}

func (e *AdjustmentError) Error() string {
	return fmt.Sprintf("adjust stock of %q from %d to %d: %v",
		e.ProductID, e.PreviousQuantity, e.AttemptedQuantity, e.Err)
}

func (e *AdjustmentError) Unwrap() error {
	return e.Err
}

// IsConcurrencyConflict проверяет, является ли ошибка конфликтом конкурентной записи.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsNotFound проверяет, что ошибка является NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation проверяет, что ошибка является ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientStock проверяет, что ошибка является InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var ie *InsufficientStockError
	return errors.As(err, &ie)
}

// IsRetryExhausted проверяет, что ошибка является RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}
