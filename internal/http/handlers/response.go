package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-live-presence/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by every operator endpoint.
// Webhook endpoints answer with WebhookAck instead, except for access_denied.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client report to server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine code, one of the ErrCode* constants.
	Code string `json:"code" example:"not_found"`
	Message string `json:"message" example:"event not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are also logged on the
// request logger so the envelope and the log line share a request id.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute/NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
