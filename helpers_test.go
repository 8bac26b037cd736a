package denkmit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/leanovate/gopter"
)

var ctx = context.Background()

var defaultGopterParameters = gopter.DefaultTestParameters()

// testEntry is a SortedEntry whose link is derived from key and sortKey.
func testEntry(sortKey int64, key string) SortedEntry {
	return SortedEntry{
		Link:    ID(blake2bSum([]byte(fmt.Sprintf("%s@%d", key, sortKey)))),
		Sort:    []int64{sortKey},
		Key:     key,
		Creator: ID(blake2bSum([]byte("creator"))),
	}
}

func testBlocks() *Blocks {
	return NewBlocks(NewInMemoryStore(), nil, NewNodeCache(1024))
}

// testForest builds a forest over one entry per sort key.
func testForest(blocks *Blocks, order int, sortKeys ...int64) (*Forest, *SortedItemsStore) {
	items := NewSortedItemsStore()
	for _, sk := range sortKeys {
		e := testEntry(sk, fmt.Sprintf("k%d", sk))
		items.Set(sk, e.Key, e.Link, e.Creator)
	}
	f, err := NewForest(order, blocks)
	if err != nil {
		panic(err)
	}
	if err := f.Rebuild(ctx, items, RebuildAll); err != nil {
		panic(err)
	}
	return f, items
}

// testClock advances by one millisecond on every reading, so replicas
// sharing it never produce equal timestamps.
type testClock struct {
	ms atomic.Int64
}

func newTestClock() *testClock {
	c := &testClock{}
	c.ms.Store(time.Now().UnixMilli())
	return c
}

func (c *testClock) Now() time.Time {
	return time.UnixMilli(c.ms.Add(1))
}
