package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps the service error taxonomy onto transport
// statuses: ValidationError -> 422 with the field name, ErrNotFound ->
// 404, anything else -> opaque 500.
func RespondDomainError(c *gin.Context, log *logger.Logger, op string, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusUnprocessableEntity, ErrorEnvelope{
			Error: APIError{
				Message: validationErr.Message,
				Code:    "validation_failed",
				Field:   validationErr.Field,
			},
		})
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if log != nil {
		log.Error(op+" failed", "error", err)
	}
	RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("request failed"))
}
