// Package httpapi публикует операции над остатками по HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
)

const (
	// ActorHeader: заголовок с идентификатором инициатора изменения.
	ActorHeader    = "X-Actor-ID"
	defaultActorID = "admin"
)

// InventoryService описывает операции сервиса остатков, нужные HTTP-слою.
type InventoryService interface {
	ListProducts(ctx context.Context, page domain.Page) ([]domain.Product, error)
	SetStock(ctx context.Context, productID string, target int64, opts inventory.MutationOptions) (inventory.StockChange, error)
	ValidateStock(ctx context.Context, items []domain.StockLine) (domain.StockValidation, error)
	LowStock(ctx context.Context, threshold int64) (inventory.LowStockReport, error)
	History(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error)
	ReserveInventory(ctx context.Context, items []domain.StockLine, opts inventory.ReservationOptions) (domain.Reservation, error)
	ReleaseReservation(ctx context.Context, orderID, actorID string) (domain.Release, error)
	ExpiredReservations(ctx context.Context, limit int) ([]domain.LedgerEntry, error)
}

// Handler обслуживает HTTP-маршруты /inventory.
type Handler struct {
	svc    InventoryService
	logger *log.Entry
}

// NewHandler создаёт обработчики.
func NewHandler(svc InventoryService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{svc: svc, logger: logger}
}

// Register вешает маршруты на router.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/inventory")
	g.GET("", h.listProducts)
	g.POST("/validate", h.validateStock)
	g.GET("/low-stock", h.lowStock)
	g.POST("/reservations", h.reserve)
	g.GET("/reservations/expired", h.expiredReservations)
	g.DELETE("/reservations/:orderId", h.release)
	g.PUT("/:productId", h.setStock)
	g.GET("/:productId/history", h.history)
}

func actor(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(ActorHeader)); id != "" {
		return id
	}
	return defaultActorID
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return v, nil
}

func (h *Handler) listProducts(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.writeError(c, err)
		return
	}

	products, err := h.svc.ListProducts(c.Request.Context(), domain.Page{Limit: limit, Offset: offset})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products": newProductResponses(products, domain.DefaultLowStockThreshold),
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) setStock(c *gin.Context) {
	var req setStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}

	productID := c.Param("productId")
	change, err := h.svc.SetStock(c.Request.Context(), productID, *req.StockQuantity, inventory.MutationOptions{
		Reason:  req.Reason,
		ActorID: actor(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	body := gin.H{"product": newProductResponse(change.Product, domain.DefaultLowStockThreshold)}
	if change.Entry != nil {
		body["entry"] = newEntryResponse(*change.Entry)
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) validateStock(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}

	result, err := h.svc.ValidateStock(c.Request.Context(), toStockLines(req.Items))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newValidationResponse(result))
}

func (h *Handler) lowStock(c *gin.Context) {
	threshold, err := queryInt(c, "threshold", int(domain.DefaultLowStockThreshold))
	if err != nil {
		h.writeError(c, err)
		return
	}

	report, err := h.svc.LowStock(c.Request.Context(), int64(threshold))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLowStockResponse(report))
}

func (h *Handler) history(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.writeError(c, err)
		return
	}

	productID := c.Param("productId")
	entries, err := h.svc.History(c.Request.Context(), productID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"productId": productID,
		"entries":   newEntryResponses(entries),
	})
}

func (h *Handler) reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}

	reservation, err := h.svc.ReserveInventory(c.Request.Context(), toStockLines(req.Items), inventory.ReservationOptions{
		OrderID: req.OrderID,
		ActorID: actor(c),
		Timeout: time.Duration(req.TimeoutMinutes) * time.Minute,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"orderId":   reservation.OrderID,
		"expiresAt": reservation.ExpiresAt,
		"entries":   newEntryResponses(reservation.Entries),
	})
}

func (h *Handler) release(c *gin.Context) {
	release, err := h.svc.ReleaseReservation(c.Request.Context(), c.Param("orderId"), actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":  release.OrderID,
		"released": len(release.Entries),
		"entries":  newEntryResponses(release.Entries),
	})
}

func (h *Handler) expiredReservations(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.writeError(c, err)
		return
	}

	entries, err := h.svc.ExpiredReservations(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": newEntryResponses(entries)})
}
