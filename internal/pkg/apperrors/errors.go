package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrConfigInvalid   ErrorType = "CONFIG_INVALID"
	ErrUnauthorized    ErrorType = "UNAUTHORIZED"
	ErrBasketIntegrity ErrorType = "BASKET_INTEGRITY"
	ErrEconomicGuard   ErrorType = "ECONOMIC_GUARD"
	ErrStateConflict   ErrorType = "STATE_CONFLICT"
	ErrAuthFailed      ErrorType = "AUTH_FAILED"
	ErrInvalidRequest  ErrorType = "INVALID_REQUEST"
	ErrInternal        ErrorType = "INTERNAL_ERROR"
	ErrNotFound        ErrorType = "NOT_FOUND"
	ErrUpstream        ErrorType = "UPSTREAM_ERROR"
	ErrReadOnly        ErrorType = "READ_ONLY"
	ErrRateLimited     ErrorType = "RATE_LIMITED"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Code       Code      `json:"reason,omitempty"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

// Reject builds a ledger rejection. The whole batch carrying the failing
// operation is discarded.
func Reject(code Code, msg string) *AppError {
	err := New(code.Type(), msg, nil)
	err.Code = code
	return err
}

func Rejectf(code Code, format string, args ...any) *AppError {
	return Reject(code, fmt.Sprintf(format, args...))
}

func RejectWrap(code Code, msg string, cause error) *AppError {
	err := Reject(code, msg)
	err.Cause = cause
	return err
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// CodeOf returns the ledger rejection code carried by err, if any.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrConfigInvalid, ErrBasketIntegrity, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrUnauthorized, ErrReadOnly:
		return http.StatusForbidden
	case ErrEconomicGuard:
		return http.StatusUnprocessableEntity
	case ErrStateConflict:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrConfigInvalid:
		return "Check fee bps (<= 10000) and timelock bounds."
	case ErrUnauthorized:
		return "Submit the batch as the fund manager, config admin or keeper."
	case ErrBasketIntegrity:
		return "Supply one (whitelist, vault, oracle) triple per enabled asset, sorted by mint."
	case ErrEconomicGuard:
		return "Check amounts against minimums, liquidity and min-out bounds."
	case ErrStateConflict:
		return "Refresh the fund or order state and retry later."
	case ErrAuthFailed:
		return "Check API keys."
	case ErrReadOnly:
		return "Wait for write access to be restored."
	case ErrRateLimited:
		return "Every operation in a batch draws from the rate limit; split the batch or retry later."
	default:
		return ""
	}
}
