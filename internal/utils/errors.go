package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Common error types for consistent handling
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("access forbidden")
	ErrBadRequest         = errors.New("invalid request")
	ErrInternalServer     = errors.New("internal server error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrValidation         = errors.New("validation error")
)

// Error codes carried by ErrorWithCode values
const (
	CodeInvalidPeriod       = "INVALID_PERIOD"
	CodeAggregationTooFine  = "AGGREGATION_TOO_FINE"
	CodeRateScheduleInvalid = "RATE_SCHEDULE_INVALID"
	CodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	CodeDeviceNotFound      = "DEVICE_NOT_FOUND"
)

// codeStatus maps error codes to HTTP status codes
var codeStatus = map[string]int{
	CodeInvalidPeriod:       http.StatusBadRequest,
	CodeAggregationTooFine:  http.StatusBadRequest,
	CodeRateScheduleInvalid: http.StatusUnprocessableEntity,
	CodeUpstreamTimeout:     http.StatusGatewayTimeout,
	CodeDeviceNotFound:      http.StatusNotFound,
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// HandleError processes an error and returns the appropriate HTTP response
func HandleError(ctx *gin.Context, err error, logger *Logger) {
	status, response := processError(err)

	// If it's a server error, log it
	if status >= 500 {
		logger.Error("Server error",
			zap.Error(err),
			zap.String("path", ctx.Request.URL.Path),
			zap.String("method", ctx.Request.Method),
			zap.String("ip", ctx.ClientIP()),
		)
	}

	ctx.JSON(status, response)
}

// processError determines the appropriate HTTP status code and response for an error
func processError(err error) (int, ErrorResponse) {
	// Coded errors carry their own status
	var coded *ErrorWithCode
	if errors.As(err, &coded) {
		if status, ok := codeStatus[coded.Code]; ok {
			return status, ErrorResponse{
				Error:     http.StatusText(status),
				Message:   err.Error(),
				Code:      coded.Code,
				Retryable: coded.Code == CodeUpstreamTimeout,
			}
		}
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: err.Error(),
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: err.Error(),
		}
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		}
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "service_unavailable",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_server_error",
			Message: "An unexpected error occurred",
		}
	}
}

// ErrorWithCode is an error tagged with a machine-readable code
type ErrorWithCode struct {
	Err  error
	Code string
}

// Error returns the error message
func (e *ErrorWithCode) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *ErrorWithCode) Unwrap() error {
	return e.Err
}

// NewErrorWithCode creates a new error with a custom error code
func NewErrorWithCode(err error, code string) *ErrorWithCode {
	return &ErrorWithCode{
		Err:  err,
		Code: code,
	}
}

// ErrorCode returns the code of the first ErrorWithCode in err's chain, or ""
func ErrorCode(err error) string {
	var coded *ErrorWithCode
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
