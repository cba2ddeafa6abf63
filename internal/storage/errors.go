package storage

import (
	"errors"
	"fmt"
)

// ErrMalformedCursor is returned when a pagination token does not decode to
// the expected base64 JSON object.
var ErrMalformedCursor = errors.New("storage: malformed cursor")

// NotFoundError reports a point-read miss. EntityType names the requested
// entity for diagnostics.
type NotFoundError struct {
	EntityType string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("storage: %s not found", e.EntityType)
}

// AlreadyExistsError reports a conditional create whose "does not exist"
// precondition failed. It covers both duplicate-entity prevention and
// uniqueness-constraint violations.
type AlreadyExistsError struct {
	EntityType string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("storage: %s already exists", e.EntityType)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError. Callers use
// it to convert existence probes into booleans.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAlreadyExists reports whether err is (or wraps) an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	return errors.As(err, &ae)
}
