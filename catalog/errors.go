package catalog

import "errors"

// ErrValidation is returned when caller-supplied data violates the
// documented contract (missing required field, empty name, unknown status).
var ErrValidation = errors.New("catalog: invalid input")

// ErrPersistence is returned when the database engine refuses an operation
// for reasons other than caller input (connection lost, schema mismatch,
// uncovered constraint violation).
var ErrPersistence = errors.New("catalog: persistence failure")
