package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
)

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsInsufficientStock(err):
		return http.StatusConflict
	case domain.IsRetryExhausted(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		body["productId"] = insufficient.ProductID
		body["requested"] = insufficient.Requested
		body["available"] = insufficient.Available
	}
	if adjErr, ok := inventory.AdjustmentFailure(err); ok {
		body["previousQuantity"] = adjErr.PreviousQuantity
		body["attemptedQuantity"] = adjErr.AttemptedQuantity
	}

	switch status {
	case http.StatusInternalServerError:
		body["error"] = "internal error"
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	case http.StatusServiceUnavailable:
		body["error"] = "service is busy, retry later"
		h.logger.WithError(err).WithField("path", c.FullPath()).Warn("request failed after retries")
	}
	c.AbortWithStatusJSON(status, body)
}

// writeBindError отвечает 400 с перечнем невалидных полей.
func (h *Handler) writeBindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  "validation failed",
		"fields": fields,
	})
}
