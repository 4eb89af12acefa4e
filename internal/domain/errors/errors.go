package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeBusiness     ErrorType = "business"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
)

// Ledger error codes. Callers surface these verbatim.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "AUCTION_NOT_FOUND"
	CodeAuctionClosed     = "AUCTION_CLOSED"
	CodeSellerCannotBid   = "SELLER_CANNOT_BID"
	CodeBidTooLow         = "BID_TOO_LOW"
	CodeNotYetExpired     = "NOT_YET_EXPIRED"
	CodeAlreadyEnded      = "ALREADY_ENDED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNothingToWithdraw = "NOTHING_TO_WITHDRAW"
	CodeTransferFailed    = "TRANSFER_FAILED"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code, so the
// predefined errors below work as sentinels with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithDetails returns a copy of the error carrying details. The receiver is
// never mutated because the predefined errors are shared.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of the error wrapping cause.
func (e *AppError) WithCause(cause error) *AppError {
	c := *e
	c.Cause = cause
	return &c
}

// WithMessage returns a copy of the error with a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	c := *e
	c.Message = message
	return &c
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s does not exist", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewForbiddenError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
	}
}

func NewConflictError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternal,
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       CodeTransferFailed,
		Message:    fmt.Sprintf("%s error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

// Predefined ledger errors
var (
	ErrInvalidInput      = NewValidationError(CodeInvalidInput, "Invalid input provided")
	ErrAuctionNotFound   = NewNotFoundError("Auction")
	ErrAuctionClosed     = NewConflictError(CodeAuctionClosed, "Auction has ended")
	ErrSellerCannotBid   = NewForbiddenError(CodeSellerCannotBid, "Seller cannot bid on own auction")
	ErrBidTooLow         = NewBusinessError(CodeBidTooLow, "Bid must be higher than current bid")
	ErrNotYetExpired     = NewConflictError(CodeNotYetExpired, "Auction has not ended yet")
	ErrAlreadyEnded      = NewConflictError(CodeAlreadyEnded, "Auction already ended")
	ErrUnauthorized      = NewForbiddenError(CodeUnauthorized, "Only seller can end auction")
	ErrNothingToWithdraw = NewBusinessError(CodeNothingToWithdraw, "No funds to withdraw")
	ErrTransferFailed    = NewExternalError("payer", "transfer failed")
	ErrInsufficientFunds = NewBusinessError(CodeInsufficientFunds, "Insufficient wallet balance")
)

// CodeOf returns the AppError code carried by err, or CodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
