package fixity

import (
	"errors"
	"fmt"
)

// ErrUnsupportedAlgorithm is returned when a digest algorithm is not
// one of constants.DigestAlgorithms.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

// DetailedError is implemented by errors that can describe themselves
// at more length than Error() for the log.
type DetailedError interface {
	Detail() string
}

var (
	_ DetailedError = (*ReadError)(nil)
	_ DetailedError = (*NotFoundError)(nil)
	_ DetailedError = (*PersistenceError)(nil)
)

// ReadError means the content stream failed before it was exhausted.
// The check is recorded as READ_ERROR and retried on the next pass.
type ReadError struct {
	ObjectID  string
	BytesRead int64
	Err       error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("error reading content of %s: %v", e.ObjectID, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func (e *ReadError) Detail() string {
	return fmt.Sprintf("ReadError: object %s failed after %d bytes (Underlying error: %v)",
		e.ObjectID, e.BytesRead, e.Err)
}

// NotFoundError means the object's content could not be located at
// all. Registries return this from OpenContentStream and
// ExpectedDigest.
type NotFoundError struct {
	ObjectID string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("object %s not found", e.ObjectID)
	}
	return fmt.Sprintf("object %s not found: %v", e.ObjectID, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func (e *NotFoundError) Detail() string {
	return fmt.Sprintf("NotFoundError: object %s (Underlying error: %v)", e.ObjectID, e.Err)
}

// PersistenceError means a check record could not be written. The
// runner returns it to the caller instead of swallowing it. The object
// has no record for the attempt, so it remains due.
type PersistenceError struct {
	Op       string
	ObjectID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ObjectID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Detail() string {
	return fmt.Sprintf("FATAL: PersistenceError: %s for object %s (Underlying error: %v)",
		e.Op, e.ObjectID, e.Err)
}

// IsNotFound returns true if err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPersistenceError returns true if err is or wraps a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
