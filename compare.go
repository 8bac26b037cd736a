package denkmit

import (
	"context"
	"fmt"
)

// Diff compares the forest with the remote tree whose root Pollard is
// remoteRoot and whose height is remoteHeight. It returns the layer-0 leaves
// that are present or different locally and those present or different
// remotely. Remote Pollards are fetched through the forest's block store.
//
// Both trees are walked at the larger of the two heights. The shorter tree's
// root is treated as the first child of single-link Pollards above it, which
// keeps positions aligned.
func (f *Forest) Diff(ctx context.Context, remoteRoot ID, remoteHeight int) ([]Leaf, []Leaf, error) {
	if remoteRoot.IsZero() {
		remoteHeight = 0
	}
	d := &differ{f: f, remoteHeight: remoteHeight}
	depth := max(len(f.layers), remoteHeight)
	if depth == 0 {
		return nil, nil, nil
	}
	if err := d.compareNodes(ctx, depth-1, 0, remoteRoot); err != nil {
		return nil, nil, err
	}
	return nonEmpty(d.out[0]), nonEmpty(d.out[1]), nil
}

type differ struct {
	f            *Forest
	remoteHeight int
	out          [2][]Leaf
}

func (d *differ) wrap(id ID) *Pollard {
	p := mustEmptyPollard(d.f.order, d.f.blocks.Hash())
	p.Append(PollardLink{ID: id})
	p.UpdateLayersOneLeaf(0)
	return p
}

func (d *differ) local(layer, pos int) *Pollard {
	top := len(d.f.layers) - 1
	if top < 0 {
		return nil
	}
	if layer > top {
		if pos != 0 || len(d.f.layers[top]) != 1 {
			return nil
		}
		return d.wrap(d.f.layers[top][0].id)
	}
	return d.f.Node(layer, pos)
}

func (d *differ) remote(ctx context.Context, layer int, id ID) (*Pollard, error) {
	if id.IsZero() {
		return nil, nil
	}
	if layer >= d.remoteHeight {
		return d.wrap(id), nil
	}
	p, err := d.f.blocks.GetPollard(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Order() != d.f.order {
		return nil, fmt.Errorf("%w: remote pollard %s has order %d, want %d", ErrIncompatibleStructure, id, p.Order(), d.f.order)
	}
	return p, nil
}

func (d *differ) compareNodes(ctx context.Context, layer, pos int, remoteID ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lp := d.local(layer, pos)
	rp, err := d.remote(ctx, layer, remoteID)
	if err != nil {
		return err
	}
	if lp == nil && rp == nil {
		return nil
	}
	if lp == nil {
		lp = mustEmptyPollard(d.f.order, d.f.blocks.Hash())
	}
	equal, diff, err := lp.Compare(rp)
	if err != nil {
		return err
	}
	if equal {
		return nil
	}
	if layer == 0 {
		d.out[0] = append(d.out[0], diff[0]...)
		d.out[1] = append(d.out[1], diff[1]...)
		return nil
	}
	capacity := d.f.Capacity()
	for i := 0; i < capacity; i++ {
		// Equal links name equal subtrees.
		if IsEmpty(diff[0][i]) && IsEmpty(diff[1][i]) {
			continue
		}
		var childID ID
		if link, ok := diff[1][i].(PollardLink); ok {
			childID = link.ID
		}
		if err := d.compareNodes(ctx, layer-1, pos*capacity+i, childID); err != nil {
			return err
		}
	}
	return nil
}
