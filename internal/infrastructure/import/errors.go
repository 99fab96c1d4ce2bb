package csvimport

import (
	"errors"
	"fmt"

	"github.com/manavault/backend/internal/domain/shared"
)

// Sentinels returned (wrapped) by the extractor. Every extractor error is also
// a shared.ErrValidationFailed so the HTTP layer maps it to 400.
var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrInvalidEncoding   = errors.New("file is not valid UTF-8 or UTF-16 text")
	ErrFileTooLarge      = errors.New("file exceeds the maximum allowed size")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMalformedFile     = errors.New("file could not be parsed")
	ErrTooManyEntries    = errors.New("archive has too many entries")
	ErrNoUsableEntries   = errors.New("archive has no csv or xlsx entries")
	ErrNoCodes           = errors.New("file contains no voucher codes")
)

// invalid wraps cause as a VALIDATION_FAILED domain error. The message names
// the file or entry so operators can find the offending upload.
func invalid(cause error, format string, args ...any) error {
	return shared.WrapDomainError(shared.CodeValidationFailed, fmt.Sprintf(format, args...), cause)
}
