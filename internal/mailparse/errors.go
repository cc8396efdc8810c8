package mailparse

import "fmt"

// ErrorKind classifies why a file could not be parsed as a message.
type ErrorKind string

const (
	KindMalformedStructure ErrorKind = "malformed-structure"
	KindUnreadableFile     ErrorKind = "unreadable-file"
	KindUnsupportedFormat  ErrorKind = "unsupported-format"
)

// ParseError is returned only when the input cannot be interpreted as a
// message at all; partial data is preferred over failure.
type ParseError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }
