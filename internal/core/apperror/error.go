// Package apperror defines the error type every ledger, document and
// transport failure is expressed in. The HTTP layer renders it as
// {"error": {"code", "message", "details"}}.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a coded, client-safe error.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus defaults from Code; transports may override it.
	HTTPStatus int `json:"-"`

	// Err is the internal cause; never serialized.
	Err error `json:"-"`
}

// New creates an error with the status registered for code.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: statusFor(code)}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail adds key to the details map and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the internal cause and returns e.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func NewValidation(message string) *AppError { return New(CodeValidation, message) }

func NewNotFound(entity string, id any) *AppError {
	return New(CodeNotFound, entity+" not found").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewBusinessRule creates a 422 error under a rule-specific code.
func NewBusinessRule(code, message string) *AppError {
	e := New(code, message)
	e.HTTPStatus = http.StatusUnprocessableEntity
	return e
}

// NewInsufficientStock reports a request the active lots cannot cover.
// Quantities are kept as passed so they keep their JSON encoding.
func NewInsufficientStock(productID string, requested, available, shortfall any) *AppError {
	return New(CodeInsufficientStock, "Insufficient stock").
		WithDetail("product_id", productID).
		WithDetail("requested", requested).
		WithDetail("available", available).
		WithDetail("shortfall", shortfall)
}

// NewLotOverflow reports a reversal that would lift a lot above the
// quantity it was received with.
func NewLotOverflow(lotID string, original, remaining, requested any) *AppError {
	return New(CodeLotOverflow, "Reversal exceeds lot capacity").
		WithDetail("lot_id", lotID).
		WithDetail("original", original).
		WithDetail("remaining", remaining).
		WithDetail("requested", requested)
}

func NewIllegalTransition(entity, from, to string) *AppError {
	return New(CodeIllegalTransition, fmt.Sprintf("%s cannot move from %s to %s", entity, from, to)).
		WithDetail("entity", entity).
		WithDetail("from", from).
		WithDetail("to", to)
}

func NewConcurrentModification(entity string, id any) *AppError {
	return New(CodeConcurrentModification, "Record was modified by another user. Please refresh and try again.").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewInternal hides err behind a generic message.
func NewInternal(err error) *AppError {
	return New(CodeInternal, "Internal server error").WithCause(err)
}

func NewUnauthorized(message string) *AppError { return New(CodeUnauthorized, message) }

func NewForbidden(message string) *AppError { return New(CodeForbidden, message) }

func NewConflict(message string) *AppError { return New(CodeConflict, message) }

func NewDuplicate(entity, field, value string) *AppError {
	return New(CodeDuplicate, fmt.Sprintf("%s with this %s already exists", entity, field)).
		WithDetail("entity", entity).
		WithDetail("field", field).
		WithDetail("value", value)
}

// NewIdempotencyConflict: the key is still being processed.
func NewIdempotencyConflict(key string) *AppError {
	return New(CodeIdempotency, "Operation already in progress or completed").
		WithDetail("idempotency_key", key)
}

// NewIdempotencyMismatch: the key was used for a different request.
func NewIdempotencyMismatch(key string) *AppError {
	return New(CodeIdempotency, "Idempotency key mismatch").
		WithDetail("idempotency_key", key)
}

// IsAppError reports whether err wraps an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError extracts the outermost AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for any error; non-AppErrors are 500.
func StatusOf(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

func IsConcurrentModification(err error) bool { return hasCode(err, CodeConcurrentModification) }

// IsConflict covers explicit conflicts and failed version preconditions.
func IsConflict(err error) bool {
	return hasCode(err, CodeConflict) || hasCode(err, CodeConcurrentModification)
}

func IsInsufficientStock(err error) bool { return hasCode(err, CodeInsufficientStock) }

func IsLotOverflow(err error) bool { return hasCode(err, CodeLotOverflow) }

func hasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
