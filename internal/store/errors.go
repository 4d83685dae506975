package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel wrapped by all record-missing errors from any
// Backend implementation. Match with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrTerminal is returned when a mutation targets a run or action already in
// a terminal status.
var ErrTerminal = errors.New("record is in a terminal status")

// NotFound builds a wrapped not-found error naming the record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
