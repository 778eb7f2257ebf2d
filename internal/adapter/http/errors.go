package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/Xolta0/shopify/internal/usecase"
	"github.com/gin-gonic/gin"
)

func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, usecase.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, usecase.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrOrderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, usecase.ErrCalculationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, usecase.ErrPaymentGateway),
		errors.Is(err, usecase.ErrFinalization),
		errors.Is(err, usecase.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders {error, details?}. Upstream bodies are only exposed for
// gateway failures, matching what clients of the checkout already expect.
func writeError(c *gin.Context, err error) {
	status := httpStatus(err)
	msg := usecase.Message(err)
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	if status == http.StatusGatewayTimeout && !errors.Is(err, usecase.ErrCalculationTimeout) {
		msg = "Request timed out"
	}
	body := gin.H{"error": msg}

	var ue *usecase.Error
	if errors.Is(err, usecase.ErrPaymentGateway) && errors.As(err, &ue) && ue.Body != "" {
		body["details"] = ue.Body
	}
	_ = c.Error(err)
	c.JSON(status, body)
}
