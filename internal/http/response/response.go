package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"atende_backend/platform/apperr"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// FromError maps a domain error to its HTTP status. Errors without a typed
// kind become a generic 500 so internals never leak to the client.
func FromError(c *gin.Context, err error) {
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		Error(c, domainErr.HTTPStatus(), domainErr.Message, nil)
		return
	}
	Error(c, http.StatusInternalServerError, "internal error", nil)
}
