package domain

import (
	"fmt"
	"strings"
	"time"
)

// MovementType задаёт арифметическое направление изменения остатка.
type MovementType string

const (
	MovementAddition   MovementType = "addition"
	MovementReduction  MovementType = "reduction"
	MovementAdjustment MovementType = "adjustment"
)

// Valid сообщает, известен ли тип движения.
func (t MovementType) Valid() bool {
	switch t {
	case MovementAddition, MovementReduction, MovementAdjustment:
		return true
	}
	return false
}

// EntryKind задаёт бизнес-причину записи в журнале.
type EntryKind string

const (
	// EntryKindMutation: прямое изменение остатка (админ, синхронизация, сидирование).
	EntryKindMutation EntryKind = "mutation"
	// EntryKindReservation: временное удержание остатка под заказ.
	EntryKindReservation EntryKind = "reservation"
	// EntryKindRelease: возврат ранее зарезервированного остатка.
	EntryKindRelease EntryKind = "release"
	// EntryKindFulfillment: списание по оплаченному заказу.
	EntryKindFulfillment EntryKind = "fulfillment"
)

// LedgerEntry — неизменяемая запись журнала движения остатка.
// После вставки допускается только пометка снятия резерва
// (ReleasedAt и суффикс в Notes).
type LedgerEntry struct {
	ID               string
	Seq              int64
	ProductID        string
	Type             MovementType
	Kind             EntryKind
	Quantity         int64
	PreviousQuantity int64
	NewQuantity      int64
	Reason           string
	ActorID          string
	OrderID          string
	Notes            string
	ExpiresAt        *time.Time
	ReleasedAt       *time.Time
	CreatedAt        time.Time
}

// Validate проверяет арифметику записи.
func (e *LedgerEntry) Validate() error {
	if strings.TrimSpace(e.ProductID) == "" {
		return NewValidationError("productId", "is required")
	}
	if !e.Type.Valid() {
		return NewValidationError("type", fmt.Sprintf("unknown movement type %q", e.Type))
	}
	if e.Quantity < 0 {
		return NewValidationError("quantity", "must be non-negative")
	}
	if e.NewQuantity < 0 {
		return NewValidationError("newQuantity", "must be non-negative")
	}

	want := e.PreviousQuantity - e.Quantity
	if e.Type == MovementAddition {
		want = e.PreviousQuantity + e.Quantity
	}
	if e.NewQuantity != want {
		return NewValidationError("newQuantity",
			fmt.Sprintf("expected %d for %s of %d from %d", want, e.Type, e.Quantity, e.PreviousQuantity))
	}
	return nil
}

// Delta возвращает знаковое изменение остатка.
func (e *LedgerEntry) Delta() int64 {
	return e.NewQuantity - e.PreviousQuantity
}

// IsActiveReservation сообщает, что запись является ещё не снятым резервом.
func (e *LedgerEntry) IsActiveReservation() bool {
	return e.Kind == EntryKindReservation && e.ReleasedAt == nil
}

// IsExpired сообщает, истёк ли срок резерва на момент now.
func (e *LedgerEntry) IsExpired(now time.Time) bool {
	return e.IsActiveReservation() && e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// ReleaseNote формирует суффикс заметки для снятого резерва.
func ReleaseNote(at time.Time, actorID string) string {
	return fmt.Sprintf("released at %s by %s", at.UTC().Format(time.RFC3339), actorID)
}

// AppendNote добавляет заметку к существующему тексту.
func AppendNote(notes, suffix string) string {
	if strings.TrimSpace(notes) == "" {
		return suffix
	}
	return notes + "; " + suffix
}
