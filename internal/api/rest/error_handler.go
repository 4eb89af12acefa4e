package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	domainErrors "github.com/davidleathers/auction-ledger/internal/domain/errors"
)

// Transport-level error codes. Ledger codes come from the domain errors.
const (
	CodeAuthRequired   = "AUTHENTICATION_REQUIRED"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeInvalidJSON    = "INVALID_JSON"
	CodeRequestTimeout = "REQUEST_TIMEOUT"
	CodeNotFound       = "NOT_FOUND"
)

// ErrorHandler maps errors to HTTP status and an error body
type ErrorHandler struct {
	logger    *slog.Logger
	debugMode bool
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError converts ledger, validation, and context errors. Anything
// else is logged and reported as an opaque internal error.
func (h *ErrorHandler) HandleError(ctx context.Context, err error) (int, *ErrorResponse) {
	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "ledger operation failed",
				"code", appErr.Code, "retryable", domainErrors.IsRetryable(err), "error", err)
		}
		return h.statusFor(appErr), &ErrorResponse{
			Code:     appErr.Code,
			Message:  appErr.Message,
			Metadata: appErr.Details,
		}
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, &ErrorResponse{
			Code:    domainErrors.CodeInvalidInput,
			Message: validationErr.Message,
			Details: validationErr.Details,
			Fields:  validationErr.Fields,
		}
	}

	var routeErr *routeError
	if errors.As(err, &routeErr) {
		return http.StatusNotFound, &ErrorResponse{
			Code:    CodeNotFound,
			Message: "No route for " + routeErr.path,
		}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return http.StatusBadRequest, &ErrorResponse{
			Code:    CodeInvalidJSON,
			Message: "Invalid JSON syntax",
			Details: fmt.Sprintf("Error at position %d", syntaxErr.Offset),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout, &ErrorResponse{
			Code:    CodeRequestTimeout,
			Message: "Request timed out",
		}
	}

	h.logger.ErrorContext(ctx, "unhandled error", "error", err)
	resp := &ErrorResponse{
		Code:    domainErrors.CodeInternal,
		Message: "An internal error occurred",
	}
	if h.debugMode {
		resp.Details = err.Error()
	}
	return http.StatusInternalServerError, resp
}

// statusFor uses the status carried by the error, falling back on its type
func (h *ErrorHandler) statusFor(e *domainErrors.AppError) int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case domainErrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case domainErrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case domainErrors.ErrorTypeConflict:
		return http.StatusConflict
	case domainErrors.ErrorTypeForbidden:
		return http.StatusForbidden
	case domainErrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case domainErrors.ErrorTypeBusiness:
		return http.StatusUnprocessableEntity
	case domainErrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// routeError is returned for paths the API does not serve
type routeError struct {
	path string
}

func (e *routeError) Error() string {
	return "no route for " + e.path
}
