package denkmit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// PollardVersion is the first field of the canonical Pollard encoding.
const PollardVersion = 1

func appendLength(buf []byte, n int) []byte {
	return binary.AppendUvarint(buf, uint64(n))
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendLength(buf, len(b))
	return append(buf, b...)
}

func appendLeaf(buf []byte, leaf Leaf) []byte {
	if leaf == nil {
		leaf = Empty{}
	}
	buf = append(buf, byte(leaf.Kind()))
	switch l := leaf.(type) {
	case Empty:
	case Hash:
		buf = appendBytes(buf, l.Digest)
	case PollardLink:
		buf = appendBytes(buf, l.ID)
	case EntryLink:
		buf = appendBytes(buf, l.Link)
		buf = appendBytes(buf, l.Creator)
	case IdentityLink:
		buf = appendBytes(buf, l.Link)
	case SortedEntry:
		buf = appendBytes(buf, l.Link)
		buf = appendLength(buf, len(l.Sort))
		for _, s := range l.Sort {
			buf = binary.AppendVarint(buf, s)
		}
		buf = appendBytes(buf, []byte(l.Key))
		buf = appendBytes(buf, l.Creator)
	default:
		panic(fmt.Sprintf("unknown leaf type %T", leaf))
	}
	return buf
}

func decodeLength(buf []byte, n *int) ([]byte, error) {
	k, len := binary.Uvarint(buf)
	if len <= 0 {
		return nil, errors.New("bad length")
	}
	if k > uint64(1<<31) {
		return nil, errors.New("length overflow")
	}
	*n = int(k)
	return buf[len:], nil
}

func decodeBytes(buf []byte, body *[]byte) ([]byte, error) {
	var err error
	var n int
	buf, err = decodeLength(buf, &n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		*body = nil
		return buf, nil
	}
	if len(buf) < n {
		return nil, errors.New("bad body length")
	}
	*body = bytes.Clone(buf[:n])
	return buf[n:], nil
}

func decodeLeaf(buf []byte, leaf *Leaf) ([]byte, error) {
	if len(buf) == 0 {
		return nil, errors.New("missing leaf kind")
	}
	kind := LeafKind(buf[0])
	buf = buf[1:]
	var err error
	switch kind {
	case KindEmpty:
		*leaf = Empty{}
	case KindHash:
		var l Hash
		buf, err = decodeBytes(buf, &l.Digest)
		*leaf = l
	case KindPollard:
		var b []byte
		buf, err = decodeBytes(buf, &b)
		*leaf = PollardLink{ID: b}
	case KindEntry:
		var link, creator []byte
		if buf, err = decodeBytes(buf, &link); err == nil {
			buf, err = decodeBytes(buf, &creator)
		}
		*leaf = EntryLink{Link: link, Creator: creator}
	case KindIdentity:
		var b []byte
		buf, err = decodeBytes(buf, &b)
		*leaf = IdentityLink{Link: b}
	case KindSortedEntry:
		var l SortedEntry
		buf, err = decodeSortedEntry(buf, &l)
		*leaf = l
	default:
		return nil, fmt.Errorf("unknown leaf kind %d", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s leaf: %w", kind, err)
	}
	return buf, nil
}

func decodeSortedEntry(buf []byte, l *SortedEntry) ([]byte, error) {
	var err error
	var link, key, creator []byte
	buf, err = decodeBytes(buf, &link)
	if err != nil {
		return nil, err
	}
	var count int
	buf, err = decodeLength(buf, &count)
	if err != nil {
		return nil, err
	}
	if count > len(buf) {
		return nil, errors.New("bad sort field count")
	}
	sort := make([]int64, count)
	for i := range sort {
		v, n := binary.Varint(buf)
		if n <= 0 {
			return nil, errors.New("bad sort field")
		}
		sort[i] = v
		buf = buf[n:]
	}
	buf, err = decodeBytes(buf, &key)
	if err != nil {
		return nil, err
	}
	buf, err = decodeBytes(buf, &creator)
	if err != nil {
		return nil, err
	}
	*l = SortedEntry{Link: link, Sort: sort, Key: string(key), Creator: creator}
	return buf, nil
}

// encodePollard writes version, order, length and then every stored layer,
// bottom-up, as a count followed by its leaves.
func encodePollard(p *Pollard) []byte {
	buf := make([]byte, 0, 64*p.Capacity())
	buf = appendLength(buf, PollardVersion)
	buf = appendLength(buf, p.order)
	buf = appendLength(buf, p.length)
	for _, layer := range p.layers {
		buf = appendLength(buf, len(layer))
		for _, leaf := range layer {
			buf = appendLeaf(buf, leaf)
		}
	}
	return buf
}

type decodedPollard struct {
	version, order, length int
	layers                 [][]Leaf
}

func decodePollardFields(buf []byte) (*decodedPollard, error) {
	var d decodedPollard
	var err error
	if buf, err = decodeLength(buf, &d.version); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if d.version != PollardVersion {
		return nil, fmt.Errorf("unsupported version %d", d.version)
	}
	if buf, err = decodeLength(buf, &d.order); err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}
	if d.order < MinOrder || d.order > MaxOrder {
		return nil, fmt.Errorf("order %d out of range", d.order)
	}
	if buf, err = decodeLength(buf, &d.length); err != nil {
		return nil, fmt.Errorf("length: %w", err)
	}
	d.layers = make([][]Leaf, d.order)
	for i := range d.layers {
		var width int
		if buf, err = decodeLength(buf, &width); err != nil {
			return nil, fmt.Errorf("layer %d width: %w", i, err)
		}
		if width != 1<<(d.order-i) {
			return nil, fmt.Errorf("layer %d has width %d, want %d", i, width, 1<<(d.order-i))
		}
		layer := make([]Leaf, width)
		for j := range layer {
			if buf, err = decodeLeaf(buf, &layer[j]); err != nil {
				return nil, fmt.Errorf("layer %d slot %d: %w", i, j, err)
			}
		}
		d.layers[i] = layer
	}
	if len(buf) != 0 {
		return nil, fmt.Errorf("%d trailing bytes", len(buf))
	}
	return &d, nil
}
