package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrDuplicateBatchID = errors.New("batch id already exists")
	ErrStaleVersion     = errors.New("batch version is stale")
	ErrInvalidStatus    = errors.New("invalid batch status")
)

// ValidationError reports a field-level input problem. It matches ErrValidation
// with errors.Is and unwraps to a more specific cause when one is set.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// StorageError reports a durable-medium failure. The store logs these and
// keeps serving from memory; they never reach API callers.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// AttachmentReleaseError reports a blob that could not be released when its
// owning batch dropped it. Logged and counted, never returned.
type AttachmentReleaseError struct {
	BatchID string
	BlobKey string
	Err     error
}

func (e *AttachmentReleaseError) Error() string {
	return "release attachment " + e.BlobKey + " of batch " + e.BatchID + ": " + e.Err.Error()
}

func (e *AttachmentReleaseError) Unwrap() error { return e.Err }
