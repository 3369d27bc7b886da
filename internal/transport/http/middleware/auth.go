package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coinvendo/gateway/internal/usecase"
)

const subVendoKeyHeader = "X-Sub-Vendo-Key"

// RequireSourceSecret verifies the X-Sub-Vendo-Key header against the
// path's :source_id before a sub-device callback reaches its handler.
// Sources of kind local pass through regardless of header.
func RequireSourceSecret(sources *usecase.SourceRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceID := c.Param("source_id")
		secret := c.GetHeader(subVendoKeyHeader)

		if err := sources.AuthenticatePulse(c.Request.Context(), sourceID, secret); err != nil {
			switch err {
			case usecase.ErrInvalid:
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid source id or secret"))
			case usecase.ErrTransient:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "source authentication unavailable"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Next()
	}
}

// newErrorResponse creates an error response with trace ID, matching the
// handlers.ErrorResponse wire shape.
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
