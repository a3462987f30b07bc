package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, it *Iterator) []int {
	t.Helper()
	defer it.Close()

	var keys []int
	for it.Valid() {
		keys = append(keys, keyInt(it.Key()))
		require.NoError(t, it.Next())
	}
	return keys
}

func TestIteratorEmptyTree(t *testing.T) {
	t.Parallel()

	tree := setup(t, 4, 4)

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.False(t, it.Valid())
	it.Close()

	assert.False(t, tree.End().Valid())
}

func TestIteratorSingleLeaf(t *testing.T) {
	t.Parallel()

	tree := setup(t, 4, 4)
	mustInsert(t, tree, 5, 3, 8, 1)

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5, 8}, collect(t, it))
}

func TestIteratorCrossesLeaves(t *testing.T) {
	t.Parallel()

	tree := setup(t, 4, 4)
	want := make([]int, 0, 64)
	for i := 1; i <= 64; i++ {
		mustInsert(t, tree, i)
		want = append(want, i)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.Equal(t, want, collect(t, it))
}

func TestIteratorValues(t *testing.T) {
	t.Parallel()

	tree := setup(t, 4, 4)
	mustInsert(t, tree, 2, 4, 6)

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	for _, k := range []int{2, 4, 6} {
		require.True(t, it.Valid())
		assert.Equal(t, key(k), it.Key())
		assert.Equal(t, value(k), it.Value())
		require.NoError(t, it.Next())
	}
	assert.False(t, it.Valid())
}

func TestIteratorBeginAt(t *testing.T) {
	t.Parallel()

	tree := setup(t, 4, 4)
	for i := 1; i <= 40; i++ {
		mustInsert(t, tree, i*2) // evens only
	}

	// Exact hit.
	it, err := tree.BeginAt(key(20))
	require.NoError(t, err)
	got := collect(t, it)
	require.NotEmpty(t, got)
	assert.Equal(t, 20, got[0])
	assert.Len(t, got, 31)

	// Between keys: positions at the next larger one.
	it, err = tree.BeginAt(key(21))
	require.NoError(t, err)
	got = collect(t, it)
	require.NotEmpty(t, got)
	assert.Equal(t, 22, got[0])

	// Past the end.
	it, err = tree.BeginAt(key(99))
	require.NoError(t, err)
	assert.False(t, it.Valid())
	it.Close()
}

func TestIteratorAfterRemovals(t *testing.T) {
	t.Parallel()

	tree := setup(t, 2, 3)
	for i := 1; i <= 16; i++ {
		mustInsert(t, tree, i)
	}
	for i := 1; i <= 16; i += 2 {
		require.NoError(t, tree.Remove(key(i)))
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6, 8, 10, 12, 14, 16}, collect(t, it))
}
