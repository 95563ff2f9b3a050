// Package handlers implements the HTTP endpoints of the operator status API.
//
// This file defines the response utilities shared by all endpoints: a
// structured error envelope with a stable machine-readable code, and helpers
// that keep success and failure shapes uniform.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "route not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/otpwatch/go-otp-forwarder/internal/http/middleware"
)

// Stable error codes returned in the ErrorResponse envelope.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code
	Code string `json:"code"`
	// Human-readable message, safe to show to operators
	Message string `json:"message"`
}

// Fail aborts the request with a structured error. Server errors (>= 500)
// are logged with the request-scoped logger.
func Fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// ok writes a 200 JSON response.
func ok(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}
