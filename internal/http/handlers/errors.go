// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and are returned in the ErrorResponse
// envelope next to the HTTP status. Clients branch on the code, not on the
// message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "event not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-live-presence/internal/http/middleware"
	"github.com/tbourn/go-live-presence/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeAccessDenied     = "access_denied"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeValidation  = "validation_error"
	ErrCodeUpstream    = "upstream_unavailable"
	ErrCodeAmbiguous   = "ambiguous_schedule"
	ErrCodeEnqueueFail = "enqueue_failed"
)

// failErr classifies a service error and writes the matching envelope.
func failErr(c *gin.Context, err error) {
	switch services.Classify(err) {
	case services.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case services.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case services.KindTransient:
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "media or video provider unavailable")
	case services.KindInvariant:
		fail(c, http.StatusConflict, ErrCodeAmbiguous, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
