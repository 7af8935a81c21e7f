package pebblestore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeRefs_EmptyList(t *testing.T) {
	b, err := encodeRefs()
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Empty(t, b)

	refs, err := decodeRefs(b)
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestEncodeRefs_ConcatenationAppends(t *testing.T) {
	first, err := encodeRefs("a", "b")
	require.NoError(t, err)
	second, err := encodeRefs("c")
	require.NoError(t, err)

	refs, err := decodeRefs(append(append([]byte{}, first...), second...))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, refs)
}

func TestVersionMerger_OrdersOperands(t *testing.T) {
	a, err := encodeRefs("a")
	require.NoError(t, err)
	b, err := encodeRefs("b")
	require.NoError(t, err)
	c, err := encodeRefs("c")
	require.NoError(t, err)

	m, err := versionMerger.Merge([]byte("key.info"), b)
	require.NoError(t, err)
	require.NoError(t, m.MergeNewer(c))
	require.NoError(t, m.MergeOlder(a))

	out, closer, err := m.Finish(true)
	require.NoError(t, err)
	require.Nil(t, closer)

	refs, err := decodeRefs(out)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, refs)
}

func TestVersionMerger_CopiesInitialOperand(t *testing.T) {
	operand, err := encodeRefs("a")
	require.NoError(t, err)

	m, err := versionMerger.Merge([]byte("key.info"), operand)
	require.NoError(t, err)
	for i := range operand {
		operand[i] = 0
	}

	out, _, err := m.Finish(false)
	require.NoError(t, err)
	refs, err := decodeRefs(out)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, refs)
}

func TestDecodeRefs_RejectsGarbage(t *testing.T) {
	_, err := decodeRefs([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}
