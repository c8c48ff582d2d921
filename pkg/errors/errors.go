package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across the service. Repository and service code
// wrap these; the HTTP layer maps them to status codes.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
	ErrServiceUnavail    = errors.New("service unavailable")
	ErrUsageLimitReached = errors.New("usage limit reached")
	ErrQuantityExhausted = errors.New("promotional quantity exhausted")
	ErrDuplicateOrder    = errors.New("usage already recorded for order")
)

// AppError is a structured application error with an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// UsageLimitReached creates a 409 error for an offer whose usage cap or
// quantity limit would be exceeded by the requested consumption.
func UsageLimitReached(resource, id string) *AppError {
	return &AppError{
		Code:    "USAGE_LIMIT_REACHED",
		Message: fmt.Sprintf("%s %s has reached its usage limit", resource, id),
		Status:  http.StatusConflict,
		Err:     ErrUsageLimitReached,
	}
}

// QuantityExhausted creates a 409 error for a flash-sale entry whose
// remaining promotional quantity cannot cover the requested amount.
func QuantityExhausted(productID string) *AppError {
	return &AppError{
		Code:    "QUANTITY_EXHAUSTED",
		Message: fmt.Sprintf("flash sale quantity exhausted for product %s", productID),
		Status:  http.StatusConflict,
		Err:     ErrQuantityExhausted,
	}
}

// DuplicateOrder creates a 409 error for a repeated usage recording.
func DuplicateOrder(orderID string) *AppError {
	return &AppError{
		Code:    "DUPLICATE_ORDER",
		Message: fmt.Sprintf("usage already recorded for order %s", orderID),
		Status:  http.StatusConflict,
		Err:     ErrDuplicateOrder,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict),
		errors.Is(err, ErrUsageLimitReached), errors.Is(err, ErrQuantityExhausted),
		errors.Is(err, ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
