package procurement

import (
	"errors"
	"fmt"

	"github.com/manavault/backend/internal/domain/shared"
)

// Error codes specific to procurement
const (
	CodeSupplierNotConfigured = "SUPPLIER_NOT_CONFIGURED"
	CodeSupplierRequestFailed = "SUPPLIER_REQUEST_FAILED"
	CodeSupplierRejected      = "SUPPLIER_REJECTED"
	CodeProductNotFound       = "PRODUCT_NOT_FOUND"
	CodeSupplierNotFound      = "SUPPLIER_NOT_FOUND"
	CodeDecryptionFailed      = "DECRYPTION_FAILED"
	CodeInvalidKey            = "INVALID_KEY"
)

var (
	ErrSupplierNotConfigured = shared.NewDomainError(CodeSupplierNotConfigured, "Supplier is not configured")
	ErrSupplierRequestFailed = shared.NewDomainError(CodeSupplierRequestFailed, "Supplier request failed")
	ErrProductNotFound       = shared.NewDomainError(CodeProductNotFound, "Product not found")
	ErrSupplierNotFound      = shared.NewDomainError(CodeSupplierNotFound, "Supplier not found")
	ErrDecryptionFailed      = shared.NewDomainError(CodeDecryptionFailed, "Voucher payload could not be decrypted")
	ErrInvalidKey            = shared.NewDomainError(CodeInvalidKey, "Voucher encryption key must be 32 bytes")

	// ErrSupplierRejected marks a supplier failure that repeating the same request cannot fix
	ErrSupplierRejected = shared.NewDomainError(CodeSupplierRejected, "Supplier rejected the request")
)

// NewValidationError builds a ValidationFailed error with a specific message
func NewValidationError(format string, args ...any) *shared.DomainError {
	return shared.NewDomainError(shared.CodeValidationFailed, fmt.Sprintf(format, args...))
}

// NewPersistenceError wraps a storage failure
func NewPersistenceError(op string, cause error) *shared.DomainError {
	return shared.WrapDomainError(shared.CodePersistenceFailed, "persistence failed during "+op, cause)
}

// NewTransitionError reports an attempted transition that the status table forbids
func NewTransitionError(entity string, from, to fmt.Stringer) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInvalidStateTransition,
		fmt.Sprintf("%s cannot transition from %s to %s", entity, from, to))
}

// IsValidation reports whether err is a ValidationFailed error
func IsValidation(err error) bool {
	return errors.Is(err, shared.ErrValidationFailed)
}
