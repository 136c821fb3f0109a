package workorders

import (
	"fmt"
	"strings"
)

// MissingFieldError is returned when required fields are absent from a record.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// InvalidDateError is returned when an inbound date string is not ISO-8601.
type InvalidDateError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date in %s: %q", e.Field, e.Value)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// InvalidTimestampError is returned when a stored timestamp cannot be serialized.
type InvalidTimestampError struct {
	Field string
	Err   error
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp in %s: %v", e.Field, e.Err)
}

func (e *InvalidTimestampError) Unwrap() error { return e.Err }

// InvalidStatusError is returned for a stored status outside ValidStatuses.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", e.Status)
}
