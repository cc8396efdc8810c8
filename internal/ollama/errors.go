package ollama

import (
	"errors"
	"fmt"
)

// ErrorKind classifies inference backend failures. The same taxonomy is
// shared by classification and reply drafting; Op tells them apart.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection-refused"
	KindModelNotFound     ErrorKind = "model-not-found"
	KindInvalidResponse   ErrorKind = "invalid-response"
	KindEmptyDraft        ErrorKind = "empty-draft"
)

// Error is the failure type for all inference backend operations.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an error chain, or empty when the
// error did not originate from the backend.
func KindOf(err error) ErrorKind {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}
	return ""
}
