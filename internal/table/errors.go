package table

import (
	"errors"
	"fmt"
)

// ErrMalformedTemporalValue is matched by errors.Is for any build aborted
// because a temporal field held an unparseable date.
var ErrMalformedTemporalValue = errors.New("malformed temporal value")

// MalformedTemporalValueError identifies the record and field whose date
// could not be parsed.
type MalformedTemporalValueError struct {
	Row   int
	Field string
	Value any
	Err   error
}

func (e *MalformedTemporalValueError) Error() string {
	return fmt.Sprintf("record %d, field %q: %s %v", e.Row, e.Field, ErrMalformedTemporalValue, e.Err)
}

// Is reports whether target is ErrMalformedTemporalValue.
func (e *MalformedTemporalValueError) Is(target error) bool {
	return target == ErrMalformedTemporalValue
}

func (e *MalformedTemporalValueError) Unwrap() error {
	return e.Err
}
