package denkmit

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diffForests(t *testing.T, local, remote *Forest) ([]Leaf, []Leaf) {
	t.Helper()
	root, err := remote.Root()
	if err != nil {
		require.ErrorIs(t, err, ErrEmptyTree)
	}
	l, r, err := local.Diff(ctx, root, remote.Height())
	require.NoError(t, err)
	return l, r
}

func sortKeys(leaves []Leaf) []int64 {
	var out []int64
	for _, l := range leaves {
		out = append(out, l.(SortedEntry).SortKey())
	}
	return out
}

func TestDiffSameHeight(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	a, _ := testForest(blocks, 1, 10, 20, 30)
	b, _ := testForest(blocks, 1, 10, 20, 40)
	local, remote := diffForests(t, a, b)
	assert.Equal(t, []int64{30}, sortKeys(local))
	assert.Equal(t, []int64{40}, sortKeys(remote))

	local, remote = diffForests(t, a, a)
	assert.Empty(t, local)
	assert.Empty(t, remote)
}

func TestApplyRemoteTail(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	a, items := testForest(blocks, 1, 10, 20, 30)
	b, _ := testForest(blocks, 1, 10, 20, 30, 40)
	_, remote := diffForests(t, a, b)
	require.Len(t, remote, 1)

	first := a.Layer(0)[0]
	se := remote[0].(SortedEntry)
	items.Set(se.SortKey(), se.Key, se.Link, se.Creator)
	require.NoError(t, a.Rebuild(ctx, items, se.SortKey()))
	assert.Same(t, first, a.Layer(0)[0], "pollards before the change are kept")
	assert.Len(t, a.Layer(0), 2)
	assert.Nil(t, a.Layer(2))

	ra, err := a.Root()
	require.NoError(t, err)
	rb, err := b.Root()
	require.NoError(t, err)
	assert.Equal(t, rb, ra)
}

func TestDiffDifferentHeights(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	short, _ := testForest(blocks, 1, 1, 2, 3)
	tall, _ := testForest(blocks, 1, 1, 2, 3, 4, 5)
	require.Equal(t, 2, short.Height())
	require.Equal(t, 3, tall.Height())

	local, remote := diffForests(t, short, tall)
	assert.Empty(t, local)
	assert.Equal(t, []int64{4, 5}, sortKeys(remote))

	local, remote = diffForests(t, tall, short)
	assert.Equal(t, []int64{4, 5}, sortKeys(local))
	assert.Empty(t, remote)
}

func TestDiffEmpty(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	full, _ := testForest(blocks, 2, seq(11)...)
	empty, _ := testForest(blocks, 2)

	local, remote := diffForests(t, full, empty)
	assert.Equal(t, seq(11), sortKeys(local))
	assert.Empty(t, remote)

	local, remote = diffForests(t, empty, full)
	assert.Empty(t, local)
	assert.Equal(t, seq(11), sortKeys(remote))

	local, remote = diffForests(t, empty, empty)
	assert.Empty(t, local)
	assert.Empty(t, remote)
}

func TestDiffShiftedTail(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	a, _ := testForest(blocks, 2, seq(40)...)
	b, items := testForest(blocks, 2, seq(40)...)
	// a new key sorting before k17 shifts every later entry by one slot
	e := testEntry(17, "extra")
	items.Set(17, e.Key, e.Link, e.Creator)
	require.NoError(t, b.Rebuild(ctx, items, 17))

	local, remote := diffForests(t, a, b)
	assert.Equal(t, seq(40)[16:], sortKeys(local))
	assert.Equal(t, append([]int64{17}, seq(40)[16:]...), sortKeys(remote))
	assert.Equal(t, "extra", remote[0].(SortedEntry).Key)
}

func TestDiffIncompatibleOrder(t *testing.T) {
	t.Parallel()
	blocks := testBlocks()
	a, _ := testForest(blocks, 2, seq(5)...)
	b, _ := testForest(blocks, 3, seq(5)...)
	root, err := b.Root()
	require.NoError(t, err)
	_, _, err = a.Diff(ctx, root, b.Height())
	assert.ErrorIs(t, err, ErrIncompatibleStructure)
}

func TestDiffMissingRemote(t *testing.T) {
	t.Parallel()
	a, _ := testForest(testBlocks(), 2, seq(5)...)
	b, _ := testForest(testBlocks(), 2, seq(6)...)
	root, err := b.Root()
	require.NoError(t, err)
	_, _, err = a.Diff(ctx, root, b.Height())
	assert.ErrorIs(t, err, ErrNotFound)
}

type countingPersist struct {
	Persist
	loads atomic.Int32
}

func (c *countingPersist) Load(ctx context.Context, key string) ([]byte, error) {
	c.loads.Add(1)
	return c.Persist.Load(ctx, key)
}

func TestDiffLoadsOnlyChangedPath(t *testing.T) {
	t.Parallel()
	persist := &countingPersist{Persist: NewInMemoryStore()}
	blocks := NewBlocks(persist, nil, nil)
	keys := make([]int64, 0, 64)
	for sk := int64(1); sk <= 64; sk++ {
		keys = append(keys, sk)
	}
	a, _ := testForest(blocks, 3, keys...)
	b, _ := testForest(blocks, 3, append(keys[:63:63], 100)...)
	require.Equal(t, []int{8, 1}, b.Shape())
	persist.loads.Store(0)

	local, remote := diffForests(t, a, b)
	assert.Equal(t, []int64{64}, sortKeys(local))
	assert.Equal(t, []int64{100}, sortKeys(remote))
	assert.Equal(t, int32(2), persist.loads.Load())
}
