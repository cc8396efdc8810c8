package storage

import (
	"errors"
	"fmt"
)

// ErrorKind labels the failure classes of the storage engine.
type ErrorKind string

const (
	KindCorruptOnLoad ErrorKind = "corrupt-on-load"
	KindWriteConflict ErrorKind = "write-conflict"
	KindNotFound      ErrorKind = "not-found"
)

// Error is the storage failure type. Collection names the durable
// collection the operation touched.
type Error struct {
	Kind       ErrorKind
	Collection string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %s: %v", e.Collection, e.Kind, e.Err)
	}
	return fmt.Sprintf("storage %s: %s", e.Collection, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err if it is a storage Error, else "".
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsNotFound reports whether err is a storage not-found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
