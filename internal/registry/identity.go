package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IDSize is the width of a schema ID in bytes. Storage backends rely on it
// being constant to build fixed-width key prefixes.
const IDSize = sha256.Size

// ID identifies a schema. It is derived from the schema name and never stored
// independently of it.
type ID [IDSize]byte

// IDOf returns the ID for a schema name.
func IDOf(name string) ID {
	return ID(sha256.Sum256([]byte(name)))
}

// ParseID decodes the hex form produced by ID.String.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != hex.EncodedLen(IDSize) {
		return id, fmt.Errorf("invalid schema id %q: expected %d hex characters", s, hex.EncodedLen(IDSize))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid schema id %q: %w", s, err)
	}
	return id, nil
}

// ParseIDs parses each hex string and drops those that are not valid IDs. A
// malformed id can never name a schema, so filters treat it as unknown.
func ParseIDs(raw []string) []ID {
	ids := make([]ID, 0, len(raw))
	for _, s := range raw {
		if id, err := ParseID(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// String returns the lowercase hex encoding of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the raw ID bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, IDSize)
	copy(b, id[:])
	return b
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IDFromBytes converts a raw key fragment back into an ID.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDSize {
		return id, fmt.Errorf("invalid schema id length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}
