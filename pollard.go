package denkmit

import (
	"bytes"
	"fmt"
	"iter"
)

const (
	MinOrder = 1
	MaxOrder = 7
)

// Pollard is a fixed-capacity binary hash tree holding up to 2^order leaves.
// Layer 0 holds the leaves; each layer above holds the hashes of sibling
// pairs of the layer below, up to a top layer of two slots. The node's id is
// the hash of its canonical encoding and stands in for the root.
//
// Leaves are appended left to right and never rewritten. A Pollard is not
// safe for concurrent mutation; once its id is computed and it has been
// published it must be treated as read-only.
type Pollard struct {
	order  int
	layers [][]Leaf
	length int
	// dirty is the lowest layer-0 slot written since the last update, or -1.
	dirty int
	id    ID
	hash  HashFunc
}

// NewPollard returns an empty, up-to-date Pollard.
func NewPollard(order int, hash HashFunc) (*Pollard, error) {
	if order < MinOrder || order > MaxOrder {
		return nil, fmt.Errorf("%w: pollard order %d not in [%d,%d]", ErrConfiguration, order, MinOrder, MaxOrder)
	}
	if hash == nil {
		hash = blake2bSum
	}
	layers := make([][]Leaf, order)
	for i := range layers {
		layer := make([]Leaf, 1<<(order-i))
		for j := range layer {
			layer[j] = Empty{}
		}
		layers[i] = layer
	}
	p := &Pollard{order: order, layers: layers, hash: hash}
	p.UpdateLayers(0)
	return p, nil
}

func mustEmptyPollard(order int, hash HashFunc) *Pollard {
	p, err := NewPollard(order, hash)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pollard) Order() int    { return p.order }
func (p *Pollard) Capacity() int { return 1 << p.order }
func (p *Pollard) Len() int      { return p.length }

// IsFree reports whether another leaf can be appended.
func (p *Pollard) IsFree() bool {
	return p.length < p.Capacity()
}

func (p *Pollard) stale() bool {
	return p.dirty >= 0
}

// Append writes leaf into the next free layer-0 slot. It returns false, and
// leaves the node untouched, when the node is full or leaf is empty.
func (p *Pollard) Append(leaf Leaf) bool {
	if !p.IsFree() || IsEmpty(leaf) {
		return false
	}
	p.layers[0][p.length] = leaf
	if !p.stale() || p.length < p.dirty {
		p.dirty = p.length
	}
	p.length++
	p.id = nil
	return true
}

func (p *Pollard) pairHash(a, b Leaf) Hash {
	ab, bb := a.hashBytes(), b.hashBytes()
	buf := make([]byte, 0, len(ab)+len(bb))
	buf = append(buf, ab...)
	buf = append(buf, bb...)
	return Hash{Digest: p.hash(buf)}
}

// UpdateLayers recomputes the hash layers starting at the pair containing
// from (or the lowest stale slot, if lower) and returns the new id.
func (p *Pollard) UpdateLayers(from int) ID {
	start := from
	if p.stale() && p.dirty < start {
		start = p.dirty
	}
	if start < 0 {
		start = 0
	}
	start &^= 1
	for i := 0; i < p.order-1; i++ {
		below, above := p.layers[i], p.layers[i+1]
		for j := start; j+1 < len(below); j += 2 {
			above[j>>1] = p.pairHash(below[j], below[j+1])
		}
		start = (start >> 1) &^ 1
	}
	return p.finalize()
}

// UpdateLayersOneLeaf recomputes only the ancestor chain of slot index. It
// falls back to UpdateLayers when other slots are stale too.
func (p *Pollard) UpdateLayersOneLeaf(index int) ID {
	if !p.stale() && p.id != nil {
		return p.id
	}
	if p.dirty != index || index != p.length-1 {
		return p.UpdateLayers(min(index, p.dirty))
	}
	pos := index &^ 1
	for i := 0; i < p.order-1; i++ {
		p.layers[i+1][pos>>1] = p.pairHash(p.layers[i][pos], p.layers[i][pos+1])
		pos = (pos >> 1) &^ 1
	}
	return p.finalize()
}

func (p *Pollard) finalize() ID {
	p.dirty = -1
	p.id = ID(p.hash(encodePollard(p)))
	return p.id
}

// ID returns the content id, or ErrNotReady when the hash layers are stale.
func (p *Pollard) ID() (ID, error) {
	if p.stale() || p.id == nil {
		return nil, ErrNotReady
	}
	return p.id, nil
}

// Encode returns the canonical serialization.
func (p *Pollard) Encode() ([]byte, error) {
	if p.stale() {
		return nil, ErrNotReady
	}
	return encodePollard(p), nil
}

// Leaf returns layer-0 slot i, or Empty when i is out of range.
func (p *Pollard) Leaf(i int) Leaf {
	if i < 0 || i >= p.Capacity() {
		return Empty{}
	}
	return p.layers[0][i]
}

// All returns a copy of layer 0.
func (p *Pollard) All() []Leaf {
	out := make([]Leaf, len(p.layers[0]))
	copy(out, p.layers[0])
	return out
}

// Leaves yields every layer-0 slot, occupied or not.
func (p *Pollard) Leaves() iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		for _, l := range p.layers[0] {
			if !yield(l) {
				return
			}
		}
	}
}

// Node returns the leaf at (layer, pos), bringing the hash layers up to date
// first. Layer order, position 0 is the root and is returned as a link to the
// node itself. Coordinates outside the tree yield Empty.
func (p *Pollard) Node(layer, pos int) Leaf {
	if p.stale() {
		p.UpdateLayers(0)
	}
	if layer < 0 || layer > p.order || pos < 0 || pos >= 1<<(p.order-layer) {
		return Empty{}
	}
	if layer == p.order {
		return PollardLink{ID: p.id}
	}
	return p.layers[layer][pos]
}

// Compare walks both trees from the root and returns the differing layer-0
// leaves of p and other, position-aligned: every equal subtree contributes
// Empty placeholders of its width to both sides. A nil other compares as an
// empty Pollard of the same order.
func (p *Pollard) Compare(other *Pollard) (bool, [2][]Leaf, error) {
	if other == nil {
		other = mustEmptyPollard(p.order, p.hash)
	} else if other.order != p.order {
		return false, [2][]Leaf{}, fmt.Errorf("%w: order %d vs %d", ErrIncompatibleStructure, p.order, other.order)
	}
	diff := p.compareAt(other, p.order, 0)
	equal := len(nonEmpty(diff[0])) == 0 && len(nonEmpty(diff[1])) == 0
	return equal, diff, nil
}

func (p *Pollard) compareAt(other *Pollard, layer, pos int) [2][]Leaf {
	a, b := p.Node(layer, pos), other.Node(layer, pos)
	if LeavesEqual(a, b) {
		return [2][]Leaf{emptyLeaves(1 << layer), emptyLeaves(1 << layer)}
	}
	if layer == 0 {
		return [2][]Leaf{{a}, {b}}
	}
	left := p.compareAt(other, layer-1, 2*pos)
	right := p.compareAt(other, layer-1, 2*pos+1)
	return [2][]Leaf{
		append(left[0], right[0]...),
		append(left[1], right[1]...),
	}
}

func emptyLeaves(n int) []Leaf {
	out := make([]Leaf, n)
	for i := range out {
		out[i] = Empty{}
	}
	return out
}

// DecodePollard parses a canonical encoding and checks it for internal
// consistency. The returned node is up to date and its id is the hash of buf.
func DecodePollard(buf []byte, hash HashFunc) (*Pollard, error) {
	if hash == nil {
		hash = blake2bSum
	}
	d, err := decodePollardFields(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: decode pollard: %v", ErrInvalidStructure, err)
	}
	capacity := 1 << d.order
	if d.length > capacity {
		return nil, fmt.Errorf("%w: pollard length %d exceeds capacity %d", ErrInvalidStructure, d.length, capacity)
	}
	for j, l := range d.layers[0] {
		if (j < d.length) == IsEmpty(l) {
			return nil, fmt.Errorf("%w: pollard slot %d inconsistent with length %d", ErrInvalidStructure, j, d.length)
		}
	}
	p := &Pollard{order: d.order, layers: d.layers, length: d.length, dirty: -1, hash: hash}
	for i := 0; i < p.order-1; i++ {
		for j := 0; j < len(p.layers[i]); j += 2 {
			want := p.pairHash(p.layers[i][j], p.layers[i][j+1])
			got, ok := p.layers[i+1][j>>1].(Hash)
			if !ok || !bytes.Equal(got.Digest, want.Digest) {
				return nil, fmt.Errorf("%w: pollard hash mismatch at layer %d slot %d", ErrInvalidStructure, i+1, j>>1)
			}
		}
	}
	if !bytes.Equal(encodePollard(p), buf) {
		return nil, fmt.Errorf("%w: pollard encoding is not canonical", ErrInvalidStructure)
	}
	p.id = ID(hash(buf))
	return p, nil
}
