package pebblestore

import (
	"bytes"

	"github.com/aevon-lab/schema-registry/internal/registry"
)

// Key layout:
//
//	reverseTag ∥ id         -> schema name
//	id ∥ ".info"            -> encoded list of version references
//	id ∥ "." ∥ suffix       -> version payload
//
// Every key starts with a registry.IDSize wide partition prefix: the schema id
// for info and version keys, the reverse tag for reverse-index keys.
const prefixLen = registry.IDSize

var (
	reverseTag = []byte("_reverse______________________32")
	infoSuffix = []byte(".info")
)

func reverseKey(id registry.ID) []byte {
	key := make([]byte, 0, len(reverseTag)+registry.IDSize)
	key = append(key, reverseTag...)
	return append(key, id[:]...)
}

func infoKey(id registry.ID) []byte {
	key := make([]byte, 0, registry.IDSize+len(infoSuffix))
	key = append(key, id[:]...)
	return append(key, infoSuffix...)
}

func versionKey(id registry.ID, ref string) []byte {
	key := make([]byte, 0, registry.IDSize+1+len(ref))
	key = append(key, id[:]...)
	key = append(key, '.')
	return append(key, ref...)
}

// idFromReverseKey extracts the schema id from a reverse-index key. ok is
// false for keys that merely share the tag bytes.
func idFromReverseKey(key []byte) (registry.ID, bool) {
	if len(key) != len(reverseTag)+registry.IDSize || !bytes.HasPrefix(key, reverseTag) {
		return registry.ID{}, false
	}
	id, err := registry.IDFromBytes(key[len(reverseTag):])
	if err != nil {
		return registry.ID{}, false
	}
	return id, true
}

// prefixUpperBound returns the smallest key greater than every key that starts
// with prefix, or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// splitPrefix is the prefix extractor: the first prefixLen bytes of a key.
func splitPrefix(key []byte) int {
	if len(key) < prefixLen {
		return len(key)
	}
	return prefixLen
}
