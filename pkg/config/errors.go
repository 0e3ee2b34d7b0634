package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKey is returned when a lookup names a child or value that
	// does not exist in the addressed node.
	ErrUnknownKey = errors.New("unknown key")

	// ErrDuplicateDefinition is returned when a section name is defined
	// twice under the same parent.
	ErrDuplicateDefinition = errors.New("duplicate definition")

	// ErrUnexpectedClose is returned for a '}' with no open section.
	ErrUnexpectedClose = errors.New("unexpected '}'")

	// ErrInternal reports trees the diff cannot reconcile.
	ErrInternal = errors.New("internal consistency error")
)

// ParseError is a parse failure at a specific input line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Warning is a non-fatal parser observation.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}
