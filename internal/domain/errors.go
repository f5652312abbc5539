package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code and message, so a DomainError carrying
// a cause still satisfies errors.Is against the bare sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConfig            = "CONFIG_ERROR"
	ErrCodeEmbedding         = "EMBEDDING_ERROR"
	ErrCodeStoreUnavailable  = "STORE_UNAVAILABLE"
	ErrCodeEmbedderDown      = "EMBEDDER_UNAVAILABLE"
	ErrCodeRebuildInProgress = "REBUILD_IN_PROGRESS"
	ErrCodeRebuildFailed     = "REBUILD_FAILED"
	ErrCodeIndexNotReady     = "INDEX_NOT_READY"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrUnsupportedModality  = NewDomainError(ErrCodeValidation, "unsupported file type")
	ErrDimensionMismatch    = NewDomainError(ErrCodeValidation, "vector dimension mismatch")
	ErrPayloadTooLarge      = NewDomainError(ErrCodePayloadTooLarge, "request body too large")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrVersionNotFound  = NewDomainError(ErrCodeNotFound, "index version not found")
)

// Engine errors
var (
	ErrConfig            = NewDomainError(ErrCodeConfig, "invalid configuration")
	ErrEmbedding         = NewDomainError(ErrCodeEmbedding, "text cannot be embedded")
	ErrStoreUnavailable  = NewDomainError(ErrCodeStoreUnavailable, "document store unavailable")
	ErrEmbedderDown      = NewDomainError(ErrCodeEmbedderDown, "embedding service unavailable")
	ErrRebuildInProgress = NewDomainError(ErrCodeRebuildInProgress, "index rebuild already in progress")
	ErrRebuildFailed     = NewDomainError(ErrCodeRebuildFailed, "index rebuild failed")
	ErrIndexNotReady     = NewDomainError(ErrCodeIndexNotReady, "no active index version")
)

// ConfigError reports invalid engine parameters.
func ConfigError(format string, args ...any) error {
	return NewDomainErrorWithCause(ErrCodeConfig, ErrConfig.Message, fmt.Errorf(format, args...))
}

// EmbeddingError wraps a failure to vectorize a single input.
func EmbeddingError(err error) error {
	return NewDomainErrorWithCause(ErrCodeEmbedding, ErrEmbedding.Message, err)
}

// EmbedderUnavailable wraps an outage of a remote embedding service. Unlike
// EmbeddingError it is not specific to one input, so callers must not skip
// past it.
func EmbedderUnavailable(err error) error {
	return NewDomainErrorWithCause(ErrCodeEmbedderDown, ErrEmbedderDown.Message, err)
}

// StoreUnavailable wraps a failure of the durable store.
func StoreUnavailable(err error) error {
	return NewDomainErrorWithCause(ErrCodeStoreUnavailable, ErrStoreUnavailable.Message, err)
}

// PayloadTooLarge reports a request body over limit bytes.
func PayloadTooLarge(limit int64) error {
	return NewDomainErrorWithCause(ErrCodePayloadTooLarge, ErrPayloadTooLarge.Message, fmt.Errorf("limit is %d bytes", limit))
}

// RebuildFailed wraps the fatal cause of an aborted rebuild.
func RebuildFailed(err error) error {
	return NewDomainErrorWithCause(ErrCodeRebuildFailed, ErrRebuildFailed.Message, err)
}

// HasCode reports whether err is, or wraps, a DomainError carrying code.
func HasCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}
