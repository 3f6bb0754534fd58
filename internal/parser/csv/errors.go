package csv

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is wrapped by HeaderError when the input has no header row.
var ErrEmptyInput = errors.New("empty input")

// HeaderError reports a missing or malformed header. It is always fatal.
type HeaderError struct {
	Err error
}

func (e *HeaderError) Error() string { return fmt.Sprintf("read csv header: %v", e.Err) }
func (e *HeaderError) Unwrap() error { return e.Err }

// ParseError reports a row whose quoting or encoding could not be decoded.
// It is row-level: under PolicySkip the row is dropped and counted.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("line %d: parse: %v", e.Line, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a data row whose field count differs from the header.
// Under PolicySkip the row is dropped and counted; under PolicyFailFast it
// aborts the run.
type SchemaError struct {
	Line int
	Want int
	Got  int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("line %d: incorrect number of fields: expected %d, got %d", e.Line, e.Want, e.Got)
}
