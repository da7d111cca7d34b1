package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
)

type setStockRequest struct {
	StockQuantity *int64 `json:"stockQuantity" binding:"required"`
	Reason        string `json:"reason" binding:"max=500"`
}

type stockLineRequest struct {
	ID       string `json:"id" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

type validateRequest struct {
	Items []stockLineRequest `json:"items" binding:"required,min=1,dive"`
}

type reserveRequest struct {
	OrderID        string             `json:"orderId" binding:"required"`
	Items          []stockLineRequest `json:"items" binding:"required,min=1,dive"`
	TimeoutMinutes int                `json:"timeoutMinutes" binding:"min=0,max=1440"`
}

func toStockLines(items []stockLineRequest) []domain.StockLine {
	lines := make([]domain.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.StockLine{ProductID: item.ID, Quantity: item.Quantity})
	}
	return lines
}

type productResponse struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	SKU           string             `json:"sku,omitempty"`
	StockQuantity int64              `json:"stockQuantity"`
	Status        domain.StockStatus `json:"status"`
	Version       int64              `json:"version"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func newProductResponse(p domain.Product, threshold int64) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		StockQuantity: p.StockQuantity,
		Status:        p.Status(threshold),
		Version:       p.Version,
		UpdatedAt:     p.UpdatedAt,
	}
}

func newProductResponses(products []domain.Product, threshold int64) []productResponse {
	result := make([]productResponse, 0, len(products))
	for _, p := range products {
		result = append(result, newProductResponse(p, threshold))
	}
	return result
}

type entryResponse struct {
	ID               string              `json:"id"`
	ProductID        string              `json:"productId"`
	TransactionType  domain.MovementType `json:"transactionType"`
	Kind             domain.EntryKind    `json:"kind"`
	Quantity         int64               `json:"quantity"`
	PreviousQuantity int64               `json:"previousQuantity"`
	NewQuantity      int64               `json:"newQuantity"`
	Reason           string              `json:"reason,omitempty"`
	ActorID          string              `json:"actorId,omitempty"`
	OrderID          string              `json:"orderId,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	ExpiresAt        *time.Time          `json:"expiresAt,omitempty"`
	ReleasedAt       *time.Time          `json:"releasedAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

func newEntryResponse(e domain.LedgerEntry) entryResponse {
	return entryResponse{
		ID:               e.ID,
		ProductID:        e.ProductID,
		TransactionType:  e.Type,
		Kind:             e.Kind,
		Quantity:         e.Quantity,
		PreviousQuantity: e.PreviousQuantity,
		NewQuantity:      e.NewQuantity,
		Reason:           e.Reason,
		ActorID:          e.ActorID,
		OrderID:          e.OrderID,
		Notes:            e.Notes,
		ExpiresAt:        e.ExpiresAt,
		ReleasedAt:       e.ReleasedAt,
		CreatedAt:        e.CreatedAt,
	}
}

func newEntryResponses(entries []domain.LedgerEntry) []entryResponse {
	result := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, newEntryResponse(e))
	}
	return result
}

type itemAvailabilityResponse struct {
	ID        string `json:"id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	InStock   bool   `json:"inStock"`
	Found     bool   `json:"found"`
}

type validationResponse struct {
	Valid           bool                       `json:"valid"`
	Items           []itemAvailabilityResponse `json:"items"`
	OutOfStockItems []itemAvailabilityResponse `json:"outOfStockItems"`
}

func newValidationResponse(v domain.StockValidation) validationResponse {
	convert := func(items []domain.ItemAvailability) []itemAvailabilityResponse {
		result := make([]itemAvailabilityResponse, 0, len(items))
		for _, item := range items {
			result = append(result, itemAvailabilityResponse{
				ID:        item.ProductID,
				Requested: item.Requested,
				Available: item.Available,
				InStock:   item.InStock,
				Found:     item.Found,
			})
		}
		return result
	}
	return validationResponse{
		Valid:           v.Valid,
		Items:           convert(v.Items),
		OutOfStockItems: convert(v.OutOfStockItems),
	}
}

type lowStockResponse struct {
	Threshold       int64             `json:"threshold"`
	LowStock        []productResponse `json:"lowStock"`
	OutOfStock      []productResponse `json:"outOfStock"`
	LowStockCount   int               `json:"lowStockCount"`
	OutOfStockCount int               `json:"outOfStockCount"`
}

func newLowStockResponse(r inventory.LowStockReport) lowStockResponse {
	return lowStockResponse{
		Threshold:       r.Threshold,
		LowStock:        newProductResponses(r.LowStock, r.Threshold),
		OutOfStock:      newProductResponses(r.OutOfStock, r.Threshold),
		LowStockCount:   len(r.LowStock),
		OutOfStockCount: len(r.OutOfStock),
	}
}
