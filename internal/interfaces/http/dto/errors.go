package dto

import (
	"net/http"

	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
)

// Codes produced by the HTTP layer itself. Domain codes pass through unchanged.
const (
	ErrCodeValidationFailed = shared.CodeValidationFailed
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	ErrCodeRouteNotFound    = "ROUTE_NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeValidationFailed:       http.StatusBadRequest,
	shared.CodeNotFound:               http.StatusNotFound,
	shared.CodeDuplicateRequest:       http.StatusConflict,
	shared.CodeInvalidStateTransition: http.StatusUnprocessableEntity,
	shared.CodePersistenceFailed:      http.StatusInternalServerError,

	procurement.CodeProductNotFound:       http.StatusNotFound,
	procurement.CodeSupplierNotFound:      http.StatusNotFound,
	procurement.CodeSupplierNotConfigured: http.StatusUnprocessableEntity,
	procurement.CodeSupplierRequestFailed: http.StatusBadGateway,
	procurement.CodeDecryptionFailed:      http.StatusInternalServerError,
	procurement.CodeInvalidKey:            http.StatusInternalServerError,

	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeRequestTooLarge:  http.StatusRequestEntityTooLarge,
	ErrCodeRouteNotFound:    http.StatusNotFound,
	ErrCodeMethodNotAllowed: http.StatusMethodNotAllowed,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ExposesMessage reports whether the domain message for code may be shown to
// clients. Internal failures get a generic message instead.
func ExposesMessage(code string) bool {
	return GetHTTPStatus(code) != http.StatusInternalServerError
}
