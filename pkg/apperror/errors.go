package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the request with the same entry id.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case CodeContention, CodeStoreUnavailable:
		return true
	}
	return false
}

// Error codes.
const (
	CodeNotFound            = "LEDGER_001"
	CodeAlreadyExists       = "LEDGER_002"
	CodeInvalidDelta        = "LEDGER_003"
	CodeInsufficientFunds   = "LEDGER_004"
	CodeContention          = "LEDGER_005"
	CodeIdempotencyKeyReuse = "LEDGER_006"
	CodeValidation          = "REQ_001"
	CodeInvalidAPIKey       = "AUTH_001"
	CodeInvalidToken        = "AUTH_002"
	CodeForbidden           = "AUTH_003"
	CodeRateLimited         = "RATE_001"
	CodeInternal            = "SYS_001"
	CodeStoreUnavailable    = "SYS_002"
	CodeCanceled            = "SYS_003"
)

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Ledger (LEDGER) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAlreadyExists(entity string) *AppError {
	return New(CodeAlreadyExists, fmt.Sprintf("%s already exists", entity), http.StatusConflict)
}

func ErrInvalidDelta(reason string) *AppError {
	return New(CodeInvalidDelta, fmt.Sprintf("Invalid delta: %s", reason), http.StatusBadRequest)
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusConflict)
}

func ErrContention(err error) *AppError {
	return Wrap(CodeContention, "Too many concurrent updates, retry with the same entry id", http.StatusConflict, err)
}

func ErrIdempotencyKeyReuse() *AppError {
	return New(CodeIdempotencyKeyReuse, "Entry id was already used for a different operation", http.StatusUnprocessableEntity)
}

// ---- Request (REQ) ----

// Validation returns a REQ_001 validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidAPIKey() *AppError {
	return New(CodeInvalidAPIKey, "Invalid API key", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Access to this wallet is not allowed", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

func ErrStoreUnavailable(err error) *AppError {
	return Wrap(CodeStoreUnavailable, "Data store unavailable", http.StatusServiceUnavailable, err)
}

func ErrCanceled(err error) *AppError {
	return Wrap(CodeCanceled, "Request canceled before completion", http.StatusRequestTimeout, err)
}
