package pebblestore

import (
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// VersionMergerName is persisted in the store's OPTIONS file; changing it
// makes existing data directories unreadable.
const VersionMergerName = "schemaregistry.VersionMerger"

// versionMerger appends version reference lists. References are encoded as a
// protobuf ListValue, and concatenating two encoded messages yields a message
// whose repeated field holds both lists in order, so merging is byte
// concatenation with older operands first.
var versionMerger = &pebble.Merger{
	Name: VersionMergerName,
	Merge: func(key, value []byte) (pebble.ValueMerger, error) {
		m := &refListMerger{}
		m.buf = append(m.buf, value...)
		return m, nil
	},
}

type refListMerger struct {
	buf []byte
}

func (m *refListMerger) MergeNewer(value []byte) error {
	m.buf = append(m.buf, value...)
	return nil
}

func (m *refListMerger) MergeOlder(value []byte) error {
	merged := make([]byte, 0, len(value)+len(m.buf))
	merged = append(merged, value...)
	m.buf = append(merged, m.buf...)
	return nil
}

func (m *refListMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return m.buf, nil, nil
}

// encodeRefs serializes version references into a merge operand.
func encodeRefs(refs ...string) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(refs))}
	for i, ref := range refs {
		list.Values[i] = structpb.NewStringValue(ref)
	}
	b, err := proto.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to encode version references: %w", err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

func decodeRefs(b []byte) ([]string, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("failed to decode version references: %w", err)
	}
	refs := make([]string, len(list.GetValues()))
	for i, v := range list.GetValues() {
		refs[i] = v.GetStringValue()
	}
	return refs, nil
}
