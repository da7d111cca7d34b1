package domain

import (
	"strings"
	"time"
)

// Product — товар с авторитетным значением доступного остатка.
type Product struct {
	ID   string
	Name string
	SKU  string
	// StockQuantity меняется только через условную запись CompareAndSetStock.
	StockQuantity int64
	// Version увеличивается при каждой записи строки товара.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля карточки товара перед сохранением.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return NewValidationError("id", "is required")
	}
	if p.StockQuantity < 0 {
		return NewValidationError("stockQuantity", "must be non-negative")
	}
	return nil
}

// StockStatus классифицирует товар по уровню остатка.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// DefaultLowStockThreshold задаёт порог «мало на складе» по умолчанию.
const DefaultLowStockThreshold int64 = 10

// Status возвращает статус остатка относительно порога.
func (p *Product) Status(threshold int64) StockStatus {
	switch {
	case p.StockQuantity == 0:
		return StockStatusOutOfStock
	case p.StockQuantity <= threshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// Page задаёт параметры постраничной выборки.
type Page struct {
	Limit  int
	Offset int
}
