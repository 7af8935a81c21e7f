package registry

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrAlreadyExists is returned when creating a schema whose name is taken.
	ErrAlreadyExists = errors.New("schema already exists")

	// ErrDoesNotExist is returned by every name-keyed operation on an unknown schema.
	ErrDoesNotExist = errors.New("schema does not exist")

	// ErrVersionNotFound means the schema exists but has no version with the
	// requested number.
	ErrVersionNotFound = errors.New("schema version not found")

	// ErrNoVersionsYet is returned when the latest version of an empty schema
	// is requested.
	ErrNoVersionsYet = fmt.Errorf("%w: schema has no versions yet", ErrVersionNotFound)

	ErrInvalidName = errors.New("schema name is required")
)

// IsNotFound reports whether err means the schema or the version is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoesNotExist) || errors.Is(err, ErrVersionNotFound)
}
