package apperror

import "net/http"

// Machine-readable codes carried in the "code" field of error bodies.
const (
	CodeInternal = "INTERNAL_ERROR"

	CodeValidation = "VALIDATION_ERROR"

	// Ledger and document rules.
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeLotOverflow       = "LOT_OVERFLOW"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodePriceBelowFloor   = "PRICE_BELOW_FLOOR"

	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"

	// CodeConcurrentModification is the only retryable code: a version
	// precondition failed inside a transaction.
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeConflict               = "CONFLICT"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeIdempotency            = "IDEMPOTENCY_CONFLICT"
)

var statusByCode = map[string]int{
	CodeInternal:               http.StatusInternalServerError,
	CodeValidation:             http.StatusBadRequest,
	CodeBusinessRule:           http.StatusUnprocessableEntity,
	CodeInsufficientStock:      http.StatusUnprocessableEntity,
	CodeLotOverflow:            http.StatusUnprocessableEntity,
	CodeIllegalTransition:      http.StatusUnprocessableEntity,
	CodePriceBelowFloor:        http.StatusUnprocessableEntity,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeNotFound:               http.StatusNotFound,
	CodeConcurrentModification: http.StatusConflict,
	CodeConflict:               http.StatusConflict,
	CodeDuplicate:              http.StatusConflict,
	CodeIdempotency:            http.StatusConflict,
}

// statusFor maps a code to its HTTP status. Unknown codes are treated as
// business rule violations.
func statusFor(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusUnprocessableEntity
}
