package dto

import (
	"net/http"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// Transport error codes. Domain failures keep their shared.Code* value.
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeValidation is used when a request fails field validation
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeInvalidJSON is used when the request body cannot be decoded
	ErrCodeInvalidJSON = "INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeInvalidJSON:         http.StatusBadRequest,
	shared.CodeInvalidInput:    http.StatusBadRequest,
	shared.CodeInvalidQuantity: http.StatusBadRequest,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,

	// Lookup errors -> 404 Not Found
	shared.CodeNotFound:         http.StatusNotFound,
	shared.CodeUnknownSKU:       http.StatusNotFound,
	shared.CodeUnknownWarehouse: http.StatusNotFound,

	// Stock and state conflicts -> 409 Conflict
	shared.CodeAlreadyExists:     http.StatusConflict,
	shared.CodeInvalidState:      http.StatusConflict,
	shared.CodeInsufficientStock: http.StatusConflict,
	shared.CodeWarehouseInactive: http.StatusConflict,
	shared.CodeCapacityExceeded:  http.StatusConflict,

	// Catalog structure errors -> 422 Unprocessable Entity
	shared.CodeCyclicBundle: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
