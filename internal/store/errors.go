package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update violates a
// uniqueness constraint, e.g. a duplicate email.
var ErrConflict = errors.New("conflict")
