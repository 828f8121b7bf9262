package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rabbitdeck/backend/internal/rabbit"
	"github.com/rabbitdeck/backend/internal/service"
)

// ErrorResponse the API error envelope. Error is a stable machine-readable
// kind tag the frontend branches on; Message is for humans; Field is set for
// validation failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeServiceError translates service-layer errors into the envelope.
func writeServiceError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: validationErr.Message,
			Field:   validationErr.Field,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrClusterNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Cluster not found",
		})
	case errors.Is(err, service.ErrAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "You are not assigned to this cluster",
		})
	case errors.Is(err, service.ErrClusterInUse):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: "Cluster is referenced by audit records and cannot be deleted",
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid username or password",
		})
	default:
		var apiErr *rabbit.APIError
		if errors.As(err, &apiErr) {
			// upstream RabbitMQ failure; relay the reason, keep our own code
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "upstream_failed",
				Message: apiErr.Reason,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
