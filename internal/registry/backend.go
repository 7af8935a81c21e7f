package registry

import (
	"context"
)

// Backend defines the storage primitives a registry is built on. Backends only
// report presence or absence; deciding what absence means (ErrDoesNotExist,
// ErrVersionNotFound, ...) is the Registry's job.
//
// Implementations must be safe for concurrent use, including concurrent
// AppendVersion calls for the same ID.
type Backend interface {
	// Exists reports whether a schema entity is stored under id.
	Exists(ctx context.Context, id ID) (bool, error)

	// Name resolves id through the reverse index.
	Name(ctx context.Context, id ID) (string, bool, error)

	// IDs enumerates every stored schema ID.
	IDs(ctx context.Context) ([]ID, error)

	// Create stores an entity with zero versions plus its reverse index entry.
	// Returns ErrAlreadyExists, leaving the stored entity untouched, if id is
	// already present. The check and the write are atomic.
	Create(ctx context.Context, id ID, name string) error

	// AppendVersion stores payload as the next version of id and returns the
	// 1-based number it was assigned.
	AppendVersion(ctx context.Context, id ID, payload []byte) (int, error)

	// Versions returns the assigned version numbers of id in ascending order.
	Versions(ctx context.Context, id ID) ([]int, error)

	// Version returns the payload stored as version number of id. found is
	// false when number is outside 1..k.
	Version(ctx context.Context, id ID, number int) (payload []byte, found bool, err error)
}

// SchemaInfo pairs a schema ID with its name.
type SchemaInfo struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}
