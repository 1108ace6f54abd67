package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockdash/server/internal/services"
)

// errorStatus сопоставляет ошибку сервисов HTTP статусу
func errorStatus(err error) int {
	var backendErr *services.BackendError
	switch {
	case errors.Is(err, services.ErrDialogNotFound),
		errors.Is(err, services.ErrUnknownLeaf),
		errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotClickable),
		errors.Is(err, services.ErrNotPurchasable),
		errors.Is(err, services.ErrNoWhatsappNumber),
		errors.Is(err, services.ErrNoSupplierSelected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &backendErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError отвечает {"error": ...} с подходящим статусом
func respondError(ctx *gin.Context, err error) {
	ctx.JSON(errorStatus(err), gin.H{
		"error": err.Error(),
	})
}
