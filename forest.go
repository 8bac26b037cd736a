package denkmit

import (
	"context"
	"fmt"
	"iter"
	"math"
)

// RebuildAll is the sort key that makes Forest.Rebuild start from the first
// entry.
const RebuildAll int64 = math.MinInt64

// Forest is the layered tree over a SortedItemsStore. Layer 0 holds Pollards
// of SortedEntry leaves in ascending order; every higher layer holds Pollards
// of links to consecutive Pollards of the layer below, up to a single root
// Pollard.
type Forest struct {
	order  int
	blocks *Blocks
	layers [][]*Pollard
	// pending is the first entry index of a rebuild that did not complete, or -1.
	pending int
}

func NewForest(order int, blocks *Blocks) (*Forest, error) {
	if order < MinOrder || order > MaxOrder {
		return nil, fmt.Errorf("%w: forest order %d not in [%d,%d]", ErrConfiguration, order, MinOrder, MaxOrder)
	}
	return &Forest{order: order, blocks: blocks, pending: -1}, nil
}

func (f *Forest) Order() int    { return f.order }
func (f *Forest) Capacity() int { return 1 << f.order }

// Height is the number of layers.
func (f *Forest) Height() int { return len(f.layers) }

// Shape returns the number of Pollards in each layer, bottom-up.
func (f *Forest) Shape() []int {
	out := make([]int, len(f.layers))
	for i, l := range f.layers {
		out[i] = len(l)
	}
	return out
}

// Layer returns the Pollards of layer i. The slice must not be modified.
func (f *Forest) Layer(i int) []*Pollard {
	if i < 0 || i >= len(f.layers) {
		return nil
	}
	return f.layers[i]
}

// Node returns the Pollard at (layer, pos), or nil.
func (f *Forest) Node(layer, pos int) *Pollard {
	if layer < 0 || layer >= len(f.layers) || pos < 0 || pos >= len(f.layers[layer]) {
		return nil
	}
	return f.layers[layer][pos]
}

// Children returns the Pollards of layer-1 linked from (layer, pos).
func (f *Forest) Children(layer, pos int) []*Pollard {
	if layer <= 0 || f.Node(layer, pos) == nil {
		return nil
	}
	var out []*Pollard
	for i := 0; i < f.Capacity(); i++ {
		child := f.Node(layer-1, pos*f.Capacity()+i)
		if child == nil {
			break
		}
		out = append(out, child)
	}
	return out
}

// Parent returns the position of the Pollard that links to (layer, pos).
func (f *Forest) Parent(layer, pos int) (int, int, bool) {
	if f.Node(layer+1, pos/f.Capacity()) == nil {
		return 0, 0, false
	}
	return layer + 1, pos / f.Capacity(), true
}

// Root returns the id of the top Pollard.
func (f *Forest) Root() (ID, error) {
	if len(f.layers) == 0 {
		return nil, ErrEmptyTree
	}
	top := f.layers[len(f.layers)-1]
	if len(top) != 1 || f.pending >= 0 {
		return nil, fmt.Errorf("%w: rebuild incomplete", ErrNotReady)
	}
	return top[0].ID()
}

func (f *Forest) Reset() {
	f.layers = nil
	f.pending = -1
}

// Rebuild brings the forest in line with items after a change at sortKey.
// Pollards holding only entries before the affected chunk, and their
// ancestors outside the changed suffix, are kept. A rebuild interrupted by
// ctx is resumed by the next call.
func (f *Forest) Rebuild(ctx context.Context, items *SortedItemsStore, sortKey int64) error {
	n := items.Len()
	if n == 0 {
		f.Reset()
		return nil
	}
	index := 0
	if sortKey != RebuildAll {
		it, _ := items.Find(sortKey)
		index = min(it.Index, n-1)
	}
	if f.pending >= 0 {
		index = min(index, f.pending)
	}
	capacity := f.Capacity()
	startPos := index / capacity
	if len(f.layers) == 0 {
		f.layers = [][]*Pollard{nil}
	}
	startPos = min(startPos, len(f.layers[0]))
	startIndex := startPos * capacity
	f.pending = startIndex

	if err := f.fill(ctx, 0, startPos, sortedLeaves(items, startIndex)); err != nil {
		return err
	}
	pos := startPos
	layer := 1
	for ; len(f.layers[layer-1]) > 1; layer++ {
		if len(f.layers) == layer {
			f.layers = append(f.layers, nil)
		}
		pos = min(pos/capacity, len(f.layers[layer]))
		if err := f.fill(ctx, layer, pos, links(f.layers[layer-1][pos*capacity:])); err != nil {
			return err
		}
	}
	f.layers = f.layers[:layer]
	f.pending = -1
	return nil
}

func sortedLeaves(items *SortedItemsStore, start int) iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		for it := range items.ItemsFromIndex(start) {
			if !yield(it.leaf()) {
				return
			}
		}
	}
}

func links(nodes []*Pollard) iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		for _, p := range nodes {
			if !yield(PollardLink{ID: p.id}) {
				return
			}
		}
	}
}

// fill replaces layer[startPos:] with Pollards packed from leaves. The
// Pollard previously at startPos is reused for as long as its leaves match,
// so appends at the tail only rehash the changed path.
func (f *Forest) fill(ctx context.Context, layer, startPos int, leaves iter.Seq[Leaf]) error {
	var prev *Pollard
	if startPos < len(f.layers[layer]) {
		prev = f.layers[layer][startPos]
	}
	f.layers[layer] = f.layers[layer][:startPos]

	var cur *Pollard
	matched := 0
	for leaf := range leaves {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cur == nil && prev != nil {
			if matched < prev.Len() && LeavesEqual(prev.Leaf(matched), leaf) {
				matched++
				continue
			}
			cur = prev.clonePrefix(matched)
		}
		if cur == nil {
			cur = mustEmptyPollard(f.order, f.blocks.Hash())
		}
		if !cur.IsFree() {
			if err := f.commit(ctx, layer, cur); err != nil {
				return err
			}
			cur = mustEmptyPollard(f.order, f.blocks.Hash())
		}
		cur.Append(leaf)
	}
	if cur == nil && matched > 0 {
		cur = prev.clonePrefix(matched)
	}
	if cur != nil && cur.Len() > 0 {
		return f.commit(ctx, layer, cur)
	}
	return nil
}

func (f *Forest) commit(ctx context.Context, layer int, p *Pollard) error {
	p.UpdateLayersOneLeaf(p.Len() - 1)
	if _, err := f.blocks.PutPollard(ctx, p); err != nil {
		return fmt.Errorf("store pollard at layer %d: %w", layer, err)
	}
	f.layers[layer] = append(f.layers[layer], p)
	return nil
}

// clonePrefix copies the first n leaves of p into a new Pollard. The copy
// keeps p's hash layers and only rehashes from slot n when n < p.Len().
func (p *Pollard) clonePrefix(n int) *Pollard {
	layers := make([][]Leaf, len(p.layers))
	for i, l := range p.layers {
		layers[i] = append([]Leaf(nil), l...)
	}
	c := &Pollard{order: p.order, layers: layers, length: p.length, dirty: -1, id: p.id, hash: p.hash}
	if n < p.length {
		for j := n; j < p.length; j++ {
			c.layers[0][j] = Empty{}
		}
		c.length = n
		c.dirty = n
		c.id = nil
	}
	return c
}
